package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPort(data string) *fakeSensor {
	port := newFakeSensor()
	port.EmitRaw(data)
	return port
}

func TestNewSerialMux(t *testing.T) {
	port := newFakeSensor()
	mux := NewSerialMux(port)
	require.NotNil(t, mux)
	assert.Same(t, port, mux.port)
	assert.NotNil(t, mux.subscribers)
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(newFakeSensor())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	assert.NotEqual(t, id1, id2)
	assert.Len(t, mux.subscribers, 2)

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "channel should be closed")
	assert.Len(t, mux.subscribers, 1)

	// unknown ids are ignored
	mux.Unsubscribe(id1)
	mux.Unsubscribe("nope")
}

func TestSerialMux_SendCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"adds newline", "D5", "D5\n"},
		{"keeps newline", "D5\n", "D5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := newFakeSensor()
			mux := NewSerialMux(port)
			require.NoError(t, mux.SendCommand(tt.command))
			assert.Equal(t, tt.want, port.Commands())
		})
	}
}

func TestSerialMux_SendCommandError(t *testing.T) {
	port := newFakeSensor()
	port.writeErr = assert.AnError
	mux := NewSerialMux(port)
	assert.ErrorIs(t, mux.SendCommand("D5"), assert.AnError)
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	mux := NewSerialMux(newPort("0.0123\n0.0125\n0.0127\n"))
	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	// the buffer drains to EOF, which ends Monitor cleanly
	require.NoError(t, mux.Monitor(context.Background()))

	for _, ch := range []chan string{a, b} {
		require.Len(t, ch, 3)
		assert.Equal(t, "0.0123", <-ch)
		assert.Equal(t, "0.0125", <-ch)
		assert.Equal(t, "0.0127", <-ch)
	}
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := newFakeSensor()
	port.readErr = assert.AnError
	mux := NewSerialMux(port)
	assert.ErrorIs(t, mux.Monitor(context.Background()), assert.AnError)
}

func TestSerialMux_MonitorCancel(t *testing.T) {
	port := newFakeSensor()
	port.blockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
}

func TestSerialMux_Close(t *testing.T) {
	port := newFakeSensor()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.closed)
	assert.Empty(t, mux.subscribers)
}

func TestSerialMux_SendCommandRoute(t *testing.T) {
	port := newFakeSensor()
	mux := NewSerialMux(port)
	routes := newAdminMux(mux)

	req := httptest.NewRequest("POST", "/debug/send-command-api", strings.NewReader("command=D5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "D5\n", port.Commands())

	req = httptest.NewRequest("POST", "/debug/send-command-api", strings.NewReader("command="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func newAdminMux(s SerialMuxInterface) *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)
	return mux
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	assert.NoError(t, d.SendCommand("D5"))
	d.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch = d.Subscribe()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, ok = <-ch
	assert.False(t, ok)

	// subscribing after close yields a closed channel
	_, ch = d.Subscribe()
	_, ok = <-ch
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)

	rec := httptest.NewRecorder()
	newAdminMux(d).ServeHTTP(rec, httptest.NewRequest("GET", "/debug/serial-disabled", nil))
	assert.Equal(t, "serial disabled", rec.Body.String())
}
