package regression

import (
	"math/rand/v2"
)

// medianTree is an order-statistics multiset of float64 values. Every value
// carries a label (the x of the data point it originates from) so that all
// values belonging to an evicted data point can be removed together.
//
// The tree is a treap ordered by (value, id); id makes duplicate values
// distinct. Insert, remove and rank queries are O(log n) expected.
type medianTree struct {
	root    *treapNode
	byLabel map[float64][]*treapNode
	nextID  uint64
}

type treapNode struct {
	value    float64
	id       uint64
	priority uint64
	size     int
	left     *treapNode
	right    *treapNode
}

func newMedianTree() *medianTree {
	return &medianTree{byLabel: make(map[float64][]*treapNode)}
}

func (n *treapNode) less(value float64, id uint64) bool {
	if n.value != value {
		return n.value < value
	}
	return n.id < id
}

func size(n *treapNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func (n *treapNode) update() {
	n.size = 1 + size(n.left) + size(n.right)
}

// split divides t into nodes ordered before (value, id) and the rest.
func split(t *treapNode, value float64, id uint64) (*treapNode, *treapNode) {
	if t == nil {
		return nil, nil
	}
	if t.less(value, id) {
		l, r := split(t.right, value, id)
		t.right = l
		t.update()
		return t, r
	}
	l, r := split(t.left, value, id)
	t.left = r
	t.update()
	return l, t
}

// merge joins two treaps where every key in l orders before every key in r.
func merge(l, r *treapNode) *treapNode {
	if l == nil {
		return r
	}
	if r == nil {
		return l
	}
	if l.priority > r.priority {
		l.right = merge(l.right, r)
		l.update()
		return l
	}
	r.left = merge(l, r.left)
	r.update()
	return r
}

func remove(t *treapNode, value float64, id uint64) *treapNode {
	if t == nil {
		return nil
	}
	switch {
	case t.value == value && t.id == id:
		return merge(t.left, t.right)
	case t.less(value, id):
		t.right = remove(t.right, value, id)
	default:
		t.left = remove(t.left, value, id)
	}
	t.update()
	return t
}

// Push inserts value under label.
func (m *medianTree) Push(label, value float64) {
	node := &treapNode{
		value:    value,
		id:       m.nextID,
		priority: rand.Uint64(),
		size:     1,
	}
	m.nextID++
	l, r := split(m.root, value, node.id)
	m.root = merge(merge(l, node), r)
	m.byLabel[label] = append(m.byLabel[label], node)
}

// Remove deletes every value stored under label.
func (m *medianTree) Remove(label float64) {
	nodes, ok := m.byLabel[label]
	if !ok {
		return
	}
	for _, node := range nodes {
		m.root = remove(m.root, node.value, node.id)
	}
	delete(m.byLabel, label)
}

// Len returns the number of stored values.
func (m *medianTree) Len() int { return size(m.root) }

// ValueAtRank returns the k-th smallest value (0-based). k must be in range.
func (m *medianTree) ValueAtRank(k int) float64 {
	t := m.root
	for t != nil {
		ls := size(t.left)
		switch {
		case k < ls:
			t = t.left
		case k == ls:
			return t.value
		default:
			k -= ls + 1
			t = t.right
		}
	}
	return 0
}

// Median returns the median of all stored values, or 0 when empty.
func (m *medianTree) Median() float64 {
	n := m.Len()
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return m.ValueAtRank(n / 2)
	default:
		return (m.ValueAtRank(n/2-1) + m.ValueAtRank(n/2)) / 2
	}
}

// Reset removes all values.
func (m *medianTree) Reset() {
	m.root = nil
	m.byLabel = make(map[float64][]*treapNode)
	m.nextID = 0
}
