package audio

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/sltalkie/internal/core"
)

// fakeCapture hands out scripted chunks, then reads silence (0, nil) until closed.
type fakeCapture struct {
	chunks chan []byte
	mu     sync.Mutex
	closed bool
	err    error
}

func newFakeCapture(chunks ...[]byte) *fakeCapture {
	c := &fakeCapture{chunks: make(chan []byte, len(chunks)+8)}
	for _, ch := range chunks {
		c.chunks <- ch
	}
	return c
}

func (c *fakeCapture) Read(p []byte) (int, error) {
	select {
	case ch := <-c.chunks:
		return copy(p, ch), nil
	case <-time.After(2 * time.Millisecond):
		c.mu.Lock()
		defer c.mu.Unlock()
		return 0, c.err
	}
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCapture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeCapture) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type fakeOutput struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	writes int
}

func (o *fakeOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, errors.New("write on closed output")
	}
	o.writes++
	return o.buf.Write(p)
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) bytes() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]byte(nil), o.buf.Bytes()...)
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func captureOpener(dev *fakeCapture) core.CaptureOpener {
	return func() (core.CaptureDevice, error) { return dev, nil }
}

// countingOutput returns an opener and a counter of how many devices it created.
func countingOutput(out *fakeOutput) (core.OutputOpener, *int) {
	var mu sync.Mutex
	n := 0
	return func() (core.OutputDevice, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return out, nil
	}, &n
}
