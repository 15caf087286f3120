package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/dkeye/sltalkie/internal/protocol"
)

func (m *Manager) onPayload(from domain.PeerID, payload []byte) {
	if st, ok := m.reg.state(from); !ok || st != domain.PeerConnected {
		m.logger.Debug().Str("peer", string(from)).Int("len", len(payload)).Msg("payload from unconnected peer, dropping")
		return
	}

	f := protocol.Classify(payload)
	switch f.Kind {
	case protocol.KindStart:
		m.openInbound(from, domain.Location{Latitude: f.Latitude, Longitude: f.Longitude})
	case protocol.KindBody:
		m.appendInbound(from, f.Body)
	case protocol.KindEnd:
		m.closeInbound(from)
	default:
		m.logger.Debug().Str("peer", string(from)).Int("len", len(payload)).Msg("malformed frame, dropping")
	}
}

// openInbound starts a new message from a peer. A message that was still
// open is discarded first.
func (m *Manager) openInbound(from domain.PeerID, loc domain.Location) {
	if prev := m.reg.takeInbound(from); prev != nil {
		m.logger.Warn().Str("peer", string(from)).Str("message", string(prev.msg.ID)).Msg("START without END, discarding previous message")
		m.discard(prev)
	}

	now := m.now()
	path := m.recordingPath(from, now.UnixMilli())
	sess := &inboundSession{
		msg:  domain.NewMessage(from, loc, path, now),
		sink: m.pipeline.StartSavingTo(path),
	}
	if !m.reg.attachInbound(from, sess) {
		sess.sink.Discard()
		return
	}
	m.logger.Info().
		Str("peer", string(from)).
		Str("message", string(sess.msg.ID)).
		Float64("lat", loc.Latitude).
		Float64("lon", loc.Longitude).
		Msg("message started")
	m.sink.OnMessageReceived(sess.msg)
}

func (m *Manager) appendInbound(from domain.PeerID, body []byte) {
	sess := m.reg.inboundOf(from)
	if sess == nil {
		m.logger.Debug().Str("peer", string(from)).Int("len", len(body)).Msg("BODY without START, dropping")
		return
	}
	sess.sink.Append(body)
	m.pipeline.Play(body)
}

func (m *Manager) closeInbound(from domain.PeerID) {
	sess := m.reg.takeInbound(from)
	if sess == nil {
		m.logger.Debug().Str("peer", string(from)).Msg("END without START, ignoring")
		return
	}
	sess.sink.Close()
	m.logger.Info().
		Str("peer", string(from)).
		Str("message", string(sess.msg.ID)).
		Int64("bytes", sess.sink.Written()).
		Msg("message complete")
}

func (m *Manager) discard(sess *inboundSession) {
	sess.sink.Discard()
	m.sink.OnMessageDiscarded(sess.msg)
}

func (m *Manager) recordingPath(from domain.PeerID, millis int64) string {
	return filepath.Join(m.dataDir, fmt.Sprintf("msg_%d_%s.pcm", millis, sanitizePeerID(from)))
}

// sanitizePeerID keeps [A-Za-z0-9_-] and replaces everything else with '_'.
func sanitizePeerID(id domain.PeerID) string {
	if id == "" {
		return "peer"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, string(id))
}
