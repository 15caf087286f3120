package app

import (
	"context"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
)

// Handle applies one transport event to the peer state machine:
//
//	Found        unknown -> Discovered -> ConnectionPending, request in background
//	Initiated    any     -> ConnectionPending, accept in background
//	Result ok    -> Connected, otherwise removed
//	Lost         removed while still Discovered
//	Disconnected removed, open inbound message discarded
//	Payload      routed through the framer for Connected peers only
//
// Calls are serialized. Transport connection calls never run under the
// lock, so a slow peer does not hold up events from the others.
func (m *Manager) Handle(ctx context.Context, ev core.Event) {
	if m.stopped.Load() {
		return
	}
	m.handleMu.Lock()
	defer m.handleMu.Unlock()
	if m.stopped.Load() {
		return
	}

	switch ev.Kind {
	case core.EventFound:
		m.onFound(ev.Peer, ev.Name)
	case core.EventLost:
		m.onLost(ev.Peer)
	case core.EventInitiated:
		m.onInitiated(ev.Peer, ev.Name)
	case core.EventResult:
		m.onResult(ev.Peer, ev.Status)
	case core.EventDisconnected:
		m.onDisconnected(ev.Peer)
	case core.EventPayload:
		m.onPayload(ev.Peer, ev.Payload)
	default:
		m.logger.Warn().Stringer("kind", ev.Kind).Str("peer", string(ev.Peer)).Msg("unknown transport event")
	}
}

func (m *Manager) onFound(id domain.PeerID, name string) {
	p, created := m.reg.discover(id, name, m.now())
	if !created {
		m.logger.Debug().Str("peer", string(id)).Stringer("state", p.State).Msg("found known peer, ignoring")
		return
	}
	m.peerChanged(p)
	if p, ok := m.reg.advance(id, domain.PeerDiscovered, domain.PeerConnectionPending, m.now()); ok {
		m.peerChanged(p)
	}

	localName := m.Nickname()
	m.async(id, "request connection", func(ctx context.Context) error {
		return m.transport.RequestConnection(ctx, localName, id)
	})
}

func (m *Manager) onLost(id domain.PeerID) {
	p, ok := m.reg.removeIf(id, domain.PeerDiscovered)
	if !ok {
		m.logger.Debug().Str("peer", string(id)).Msg("lost peer not in discovered state, ignoring")
		return
	}
	m.logger.Info().Str("peer", string(id)).Msg("peer lost")
	m.peerGone(p)
}

func (m *Manager) onInitiated(id domain.PeerID, name string) {
	p := m.reg.upsert(id, name, domain.PeerConnectionPending, m.now())
	m.peerChanged(p)

	m.async(id, "accept connection", func(ctx context.Context) error {
		return m.transport.AcceptConnection(ctx, id)
	})
}

// async runs a connection call off the event path. The outcome arrives as
// transport events; a failure removes the peer if it is still pending.
func (m *Manager) async(id domain.PeerID, op string, call func(context.Context) error) {
	m.ops.Go(func() {
		err := call(m.base)
		if err == nil {
			m.logger.Debug().Str("peer", string(id)).Str("op", op).Msg("connection call done")
			return
		}
		m.logger.Warn().Err(err).Str("peer", string(id)).Str("op", op).Msg("connection call failed")

		m.handleMu.Lock()
		defer m.handleMu.Unlock()
		if m.stopped.Load() {
			return
		}
		if p, ok := m.reg.removeIf(id, domain.PeerConnectionPending); ok {
			m.peerGone(p)
		}
	})
}

func (m *Manager) onResult(id domain.PeerID, status core.ConnStatus) {
	if status != core.StatusOK {
		m.logger.Info().Str("peer", string(id)).Stringer("status", status).Msg("connection not established")
		m.dropPeer(id)
		return
	}
	p := m.reg.upsert(id, "", domain.PeerConnected, m.now())
	m.logger.Info().Str("peer", string(id)).Str("name", p.Name).Msg("peer connected")
	m.peerChanged(p)
}

func (m *Manager) onDisconnected(id domain.PeerID) {
	m.logger.Info().Str("peer", string(id)).Msg("peer disconnected")
	m.dropPeer(id)
}

// dropPeer removes id and discards its in-flight inbound message.
func (m *Manager) dropPeer(id domain.PeerID) {
	p, sess, ok := m.reg.remove(id)
	if sess != nil {
		m.discard(sess)
	}
	if ok {
		m.peerGone(p)
	}
}
