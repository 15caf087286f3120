package eventq

import (
	"testing"
	"time"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueKeepsOrderWithoutReader(t *testing.T) {
	q := New()
	defer q.Close()

	for i := range 100 {
		q.Put(core.PayloadEvent("p", []byte{byte(i)}))
	}
	for i := range 100 {
		select {
		case ev := <-q.Events():
			require.Equal(t, []byte{byte(i)}, ev.Payload)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.Zero(t, q.Len())
}

func TestQueueCloseClosesEvents(t *testing.T) {
	q := New()
	q.Put(core.LostEvent(domain.PeerID("x")))
	q.Close()
	q.Close()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-q.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
