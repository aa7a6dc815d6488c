package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error   { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }
func (nopConn) SetReadDeadline(time.Time) error  { return nil }
func (nopConn) Close() error                     { return nil }

func TestBroadcastReachesSessionOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	a := h.NewConnection(nopConn{}, "s1")
	b := h.NewConnection(nopConn{}, "s2")
	h.Register(a)
	h.Register(b)
	assert.True(t, h.HasActiveConnections("s1"))
	assert.Equal(t, 2, h.GetConnectionCount())
	assert.Equal(t, 2, h.GetSessionCount())

	h.Broadcast("s1", []byte(`{"type":"start"}`))
	select {
	case msg := <-a.Send:
		assert.JSONEq(t, `{"type":"start"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
	assert.Empty(t, b.Send)
}

func TestBroadcastPreservesOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	c := h.NewConnection(nopConn{}, "s1")
	h.Register(c)
	for _, s := range []string{"1", "2", "3"} {
		h.Broadcast("s1", []byte(s))
	}
	for _, want := range []string{"1", "2", "3"} {
		select {
		case got := <-c.Send:
			assert.Equal(t, want, string(got))
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestUnregisterTwice(t *testing.T) {
	h := NewHub()
	c := h.NewConnection(nopConn{}, "s1")
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)
	assert.False(t, h.HasActiveConnections("s1"))
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.NoError(t, h.SendJSONToConnection(c, map[string]string{"type": "pong"}))
}
