package app

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/stretchr/testify/require"
)

type sent struct {
	peer    domain.PeerID
	payload []byte
}

type fakeTransport struct {
	mu     sync.Mutex
	events chan core.Event

	advertiseErrs []error
	discoveryErrs []error
	advertises    int
	discoveries   int
	stopAdv       int
	stopDisc      int

	requestErr error
	acceptErr  error
	sendErr    map[domain.PeerID]error

	// requestGate, when set, holds RequestConnection until closed.
	requestGate chan struct{}

	requested    []domain.PeerID
	accepted     []domain.PeerID
	disconnected []domain.PeerID
	sends        []sent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:  make(chan core.Event, 64),
		sendErr: make(map[domain.PeerID]error),
	}
}

func (f *fakeTransport) StartAdvertising(ctx context.Context, name string, opts core.AdvertiseOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertises++
	if len(f.advertiseErrs) == 0 {
		return nil
	}
	err := f.advertiseErrs[0]
	f.advertiseErrs = f.advertiseErrs[1:]
	return err
}

func (f *fakeTransport) StartDiscovery(ctx context.Context, opts core.DiscoveryOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoveries++
	if len(f.discoveryErrs) == 0 {
		return nil
	}
	err := f.discoveryErrs[0]
	f.discoveryErrs = f.discoveryErrs[1:]
	return err
}

func (f *fakeTransport) StopAdvertising() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAdv++
}

func (f *fakeTransport) StopDiscovery() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopDisc++
}

func (f *fakeTransport) RequestConnection(ctx context.Context, localName string, peer domain.PeerID) error {
	f.mu.Lock()
	f.requested = append(f.requested, peer)
	gate, err := f.requestGate, f.requestErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeTransport) requestedCopy() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PeerID(nil), f.requested...)
}

func (f *fakeTransport) AcceptConnection(ctx context.Context, peer domain.PeerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, peer)
	return f.acceptErr
}

func (f *fakeTransport) Disconnect(peer domain.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, peer)
}

func (f *fakeTransport) Send(ctx context.Context, peer domain.PeerID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[peer]; err != nil {
		return err
	}
	f.sends = append(f.sends, sent{peer: peer, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeTransport) Events() <-chan core.Event { return f.events }

func (f *fakeTransport) sentTo(peer domain.PeerID) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, s := range f.sends {
		if s.peer == peer {
			out = append(out, s.payload)
		}
	}
	return out
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// fakeMic yields pushed chunks and silence otherwise. An error pushed on
// end is returned from the next Read.
type fakeMic struct {
	chunks chan []byte
	end    chan error
	mu     sync.Mutex
	opened int
}

func newFakeMic() *fakeMic {
	return &fakeMic{chunks: make(chan []byte, 64), end: make(chan error, 1)}
}

func (f *fakeMic) open() (core.CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return f, nil
}

func (f *fakeMic) Read(p []byte) (int, error) {
	select {
	case c := <-f.chunks:
		return copy(p, c), nil
	case err := <-f.end:
		return 0, err
	case <-time.After(time.Millisecond):
		return 0, nil
	}
}

func (f *fakeMic) Close() error { return nil }

func (f *fakeMic) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

type fakeSpeaker struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *fakeSpeaker) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *fakeSpeaker) Close() error { return nil }

func (s *fakeSpeaker) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

type recordingSink struct {
	mu        sync.Mutex
	received  []domain.Message
	discarded []domain.Message
	peers     []domain.Peer
	statuses  []domain.Status
}

func (s *recordingSink) OnMessageReceived(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, m)
}

func (s *recordingSink) OnMessageDiscarded(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded = append(s.discarded, m)
}

func (s *recordingSink) OnPeerChanged(p domain.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append(s.peers, p)
}

func (s *recordingSink) OnStatus(st domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *recordingSink) receivedCopy() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.received...)
}

func (s *recordingSink) discardedCopy() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.discarded...)
}

func (s *recordingSink) peerStates(id domain.PeerID) []domain.PeerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PeerState
	for _, p := range s.peers {
		if p.ID == id {
			out = append(out, p.State)
		}
	}
	return out
}

func (s *recordingSink) lastStatus() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return domain.Status{}
	}
	return s.statuses[len(s.statuses)-1]
}

// stepClock advances one millisecond per reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type harness struct {
	m       *Manager
	tr      *fakeTransport
	mic     *fakeMic
	speaker *fakeSpeaker
	sink    *recordingSink
	dir     string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		tr:      newFakeTransport(),
		mic:     newFakeMic(),
		speaker: &fakeSpeaker{},
		sink:    &recordingSink{},
		dir:     t.TempDir(),
	}
	pipeline := audio.NewPipeline(h.mic.open, func() (core.OutputDevice, error) { return h.speaker, nil })
	clock := &stepClock{t: time.UnixMilli(1_700_000_000_000)}
	base := []Option{
		WithDataDir(h.dir),
		WithNickname("tester"),
		WithRetryBackoff(time.Millisecond),
		WithClock(clock.Now),
	}
	h.m = NewManager(h.tr, pipeline, h.sink, append(base, opts...)...)
	t.Cleanup(func() { h.m.Stop(context.Background()) })
	return h
}

func (h *harness) connect(t *testing.T, id domain.PeerID) {
	t.Helper()
	ctx := context.Background()
	h.m.Handle(ctx, core.FoundEvent(id, "name-"+string(id)))
	h.m.Handle(ctx, core.ResultEvent(id, core.StatusOK))
	st, ok := h.m.reg.state(id)
	require.True(t, ok)
	require.Equal(t, domain.PeerConnected, st)
}

// settle waits for background connection calls.
func (h *harness) settle() { h.m.ops.Wait() }

func (h *harness) payload(id domain.PeerID, b []byte) {
	h.m.Handle(context.Background(), core.PayloadEvent(id, b))
}

var errBoom = errors.New("boom")
