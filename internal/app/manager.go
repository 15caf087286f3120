// Package app runs the peer session engine: connection lifecycle, inbound
// message sessions and outbound recordings on top of a core.Transport.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	ServiceID = "com.floodcomms"

	DefaultRetryBackoff = 2 * time.Second
)

type Manager struct {
	transport core.Transport
	pipeline  *audio.Pipeline
	sink      core.EventSink
	reg       *registry
	logger    zerolog.Logger

	serviceID string
	dataDir   string
	backoff   time.Duration
	now       func() time.Time

	// base outlives caller contexts; the capture loop and background
	// connection calls use it.
	base    context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool

	handleMu sync.Mutex
	ops      conc.WaitGroup

	nameMu    sync.RWMutex
	localName string

	advMu       sync.Mutex
	advertising bool
	discMu      sync.Mutex
	discovering bool

	recMu    sync.Mutex
	outbound *outboundSession
}

type Option func(*Manager)

// WithDataDir sets where received recordings are written.
func WithDataDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dataDir = dir
		}
	}
}

func WithNickname(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.localName = name
		}
	}
}

func WithServiceID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.serviceID = id
		}
	}
}

// WithRetryBackoff sets the pause before the single advertising/discovery retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.backoff = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(transport core.Transport, pipeline *audio.Pipeline, sink core.EventSink, opts ...Option) *Manager {
	if sink == nil {
		sink = core.NopSink{}
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		transport: transport,
		pipeline:  pipeline,
		sink:      sink,
		reg:       newRegistry(),
		logger:    log.With().Str("module", "app.manager").Logger(),
		serviceID: ServiceID,
		dataDir:   ".",
		backoff:   DefaultRetryBackoff,
		now:       time.Now,
		base:      base,
		cancel:    cancel,
		localName: domain.RandomNickname(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run feeds transport events into Handle until ctx is done or the
// transport closes its event channel.
func (m *Manager) Run(ctx context.Context) error {
	events := m.transport.Events()
	m.logger.Info().Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("event loop ctx done")
			return nil
		case ev, ok := <-events:
			if !ok {
				m.logger.Warn().Msg("transport event channel closed")
				return nil
			}
			m.Handle(ctx, ev)
		}
	}
}

func (m *Manager) Nickname() string {
	m.nameMu.RLock()
	defer m.nameMu.RUnlock()
	return m.localName
}

// DataDir is where received recordings are written.
func (m *Manager) DataDir() string { return m.dataDir }

// Peers returns every known peer ordered by id.
func (m *Manager) Peers() []domain.Peer { return m.reg.snapshot() }

// ConnectedPeers returns the ids of Connected peers.
func (m *Manager) ConnectedPeers() []string {
	ids := m.reg.connected()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// PlayFile plays a stored recording; onComplete is always called.
func (m *Manager) PlayFile(ctx context.Context, path string, onComplete func(error)) {
	m.pipeline.PlayFile(ctx, path, onComplete)
}

// Stop ends any recording, leaves the network and releases audio devices.
// In-flight inbound messages are discarded.
func (m *Manager) Stop(ctx context.Context) {
	if m.stopped.Swap(true) {
		return
	}
	m.StopLocalRecording(ctx)
	m.StopAdvertising()
	m.StopDiscovery()

	m.cancel()
	m.handleMu.Lock()
	peers, sessions := m.reg.drain()
	m.handleMu.Unlock()
	// Handle rechecks stopped under the lock, so no new connection calls start.
	m.ops.Wait()

	for _, s := range sessions {
		m.discard(s)
	}
	for _, p := range peers {
		m.transport.Disconnect(p.ID)
		m.peerGone(p)
	}
	m.pipeline.Release()
	m.sink.OnStatus(domain.Status{Kind: domain.StatusStopped})
	m.logger.Info().Int("peers", len(peers)).Int("discarded", len(sessions)).Msg("manager stopped")
}

func (m *Manager) peerChanged(p domain.Peer) {
	m.sink.OnPeerChanged(p)
}

// peerGone reports a removed peer to observers as Disconnected.
func (m *Manager) peerGone(p domain.Peer) {
	p.State = domain.PeerDisconnected
	p.Since = m.now()
	m.sink.OnPeerChanged(p)
}
