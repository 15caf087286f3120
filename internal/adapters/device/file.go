package device

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/core"
)

// ReaderCapture replays raw PCM from r at real-time pace, then reports EOF.
type ReaderCapture struct {
	r      io.Reader
	closer io.Closer
	pace   bool
	next   time.Time
	mu     sync.Mutex
}

func NewReaderCapture(r io.Reader, pace bool) *ReaderCapture {
	c := &ReaderCapture{r: r, pace: pace}
	if rc, ok := r.(io.Closer); ok {
		c.closer = rc
	}
	return c
}

func (c *ReaderCapture) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.r.Read(b)
	if c.pace && n > 0 {
		if c.next.IsZero() {
			c.next = time.Now()
		}
		c.next = c.next.Add(bytesDuration(n))
		if d := time.Until(c.next); d > 0 {
			time.Sleep(d)
		}
	}
	return n, err
}

func (c *ReaderCapture) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func bytesDuration(n int) time.Duration {
	perSecond := audio.SampleRate * audio.Channels * audio.BitsPerSample / 8
	return time.Duration(n) * time.Second / time.Duration(perSecond)
}

// FileCapture replays a raw PCM file each time capture starts.
func FileCapture(path string) core.CaptureOpener {
	return func() (core.CaptureDevice, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open capture file: %w", err)
		}
		return NewReaderCapture(f, true), nil
	}
}

type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }
func (discard) Close() error                { return nil }

// Discard is an output that drops samples.
func Discard() core.OutputOpener {
	return func() (core.OutputDevice, error) { return discard{}, nil }
}

// Unavailable fails every open, for devices without a microphone.
func Unavailable(reason string) core.CaptureOpener {
	return func() (core.CaptureDevice, error) {
		return nil, fmt.Errorf("capture disabled: %s", reason)
	}
}
