package bridge

import (
	"context"
	"os"
	"sync"

	"github.com/dkeye/sltalkie/internal/domain"
)

type fakeEngine struct {
	mu        sync.Mutex
	recording bool
	startErr  error
	starts    []domain.Location
	stops     int
	played    []string
	peers     []domain.Peer
}

func (e *fakeEngine) StartLocalRecording(ctx context.Context, loc domain.Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.starts = append(e.starts, loc)
	e.recording = true
	return nil
}

func (e *fakeEngine) StopLocalRecording(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.recording = false
}

func (e *fakeEngine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

func (e *fakeEngine) PlayFile(ctx context.Context, path string, onComplete func(error)) {
	e.mu.Lock()
	e.played = append(e.played, path)
	e.mu.Unlock()
	go func() {
		_, err := os.Stat(path)
		onComplete(err)
	}()
}

func (e *fakeEngine) Peers() []domain.Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Peer(nil), e.peers...)
}

func (e *fakeEngine) ConnectedPeers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, p := range e.peers {
		if p.State == domain.PeerConnected {
			out = append(out, string(p.ID))
		}
	}
	return out
}

func (e *fakeEngine) Nickname() string { return "tester" }

func (e *fakeEngine) DataDir() string { return "/var/lib/sltalkie" }

func (e *fakeEngine) startLocations() []domain.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Location(nil), e.starts...)
}

func (e *fakeEngine) stopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

type fakeKeepAlive struct {
	mu      sync.Mutex
	enabled bool
}

func (k *fakeKeepAlive) SetBackgroundMode(enabled bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = enabled
}

func (k *fakeKeepAlive) Enabled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.enabled
}

// chanSub collects hub events; capacity 0 simulates a stuck client.
type chanSub struct{ ch chan []byte }

func (s chanSub) TrySend(b []byte) error {
	select {
	case s.ch <- b:
		return nil
	default:
		return ErrBackpressure
	}
}
