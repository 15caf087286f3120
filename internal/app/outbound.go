package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/dkeye/sltalkie/internal/protocol"
)

type outboundSession struct {
	location  domain.Location
	startedAt time.Time
	chunks    atomic.Int64
}

// StartLocalRecording announces a message to every connected peer and
// streams microphone audio to them until StopLocalRecording. Without
// connected peers nothing happens.
func (m *Manager) StartLocalRecording(ctx context.Context, loc domain.Location) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	if m.outbound != nil {
		return domain.ErrAlreadyRecording
	}
	peers := m.reg.connected()
	if len(peers) == 0 {
		m.logger.Info().Msg("no connected peers, not recording")
		return nil
	}

	sess := &outboundSession{location: loc, startedAt: m.now()}
	m.outbound = sess
	m.broadcast(ctx, peers, protocol.EncodeStart(loc.Latitude, loc.Longitude))

	err := m.pipeline.StartCapture(func(chunk []byte) { m.streamChunk(sess, chunk) })
	if err != nil {
		m.outbound = nil
		m.broadcast(ctx, peers, protocol.EncodeEnd())
		m.sink.OnStatus(domain.Status{Kind: domain.StatusDegraded, Detail: "microphone unavailable"})
		return fmt.Errorf("start recording: %w", err)
	}

	go m.watchCapture(sess, m.pipeline.CaptureDone())

	m.logger.Info().
		Int("peers", len(peers)).
		Float64("lat", loc.Latitude).
		Float64("lon", loc.Longitude).
		Msg("recording started")
	return nil
}

// watchCapture ends the recording when the capture loop exits on its own,
// for example when the device is drained or fails.
func (m *Manager) watchCapture(sess *outboundSession, done <-chan struct{}) {
	if done == nil {
		return
	}
	<-done
	m.recMu.Lock()
	defer m.recMu.Unlock()
	if m.outbound != sess {
		return
	}
	m.logger.Warn().Msg("capture ended without stop")
	m.finishLocked(m.base)
}

// StopLocalRecording waits for the capture loop to finish, then sends END
// to whoever is connected now.
func (m *Manager) StopLocalRecording(ctx context.Context) {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	if m.outbound == nil {
		return
	}
	m.finishLocked(ctx)
}

func (m *Manager) finishLocked(ctx context.Context) {
	m.pipeline.StopCapture()
	sess := m.outbound
	m.outbound = nil

	peers := m.reg.connected()
	if len(peers) > 0 {
		m.broadcast(ctx, peers, protocol.EncodeEnd())
	}
	m.logger.Info().
		Dur("duration", m.now().Sub(sess.startedAt)).
		Int64("chunks", sess.chunks.Load()).
		Int("peers", len(peers)).
		Msg("recording stopped")
}

func (m *Manager) IsRecording() bool {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	return m.outbound != nil
}

// streamChunk runs on the capture goroutine and must not take recMu.
func (m *Manager) streamChunk(sess *outboundSession, chunk []byte) {
	sess.chunks.Add(1)
	peers := m.reg.connected()
	if len(peers) == 0 {
		return
	}
	m.broadcast(m.base, peers, protocol.EncodeBody(chunk))
}
