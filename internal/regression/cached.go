package regression

// cached holds a lazily computed value that is invalidated whenever the
// underlying data changes.
type cached[T any] struct {
	value T
	fresh bool
}

// get returns the cached value, recomputing it with compute when stale.
func (c *cached[T]) get(compute func() T) T {
	if !c.fresh {
		c.value = compute()
		c.fresh = true
	}
	return c.value
}

func (c *cached[T]) invalidate() {
	var zero T
	c.value = zero
	c.fresh = false
}
