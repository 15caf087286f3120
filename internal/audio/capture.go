package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
)

// StartCapture opens the capture device and starts a dedicated read loop
// calling onChunk with a fresh copy of every non-empty read.
func (p *Pipeline) StartCapture(onChunk func([]byte)) error {
	p.capMu.Lock()
	defer p.capMu.Unlock()

	p.reapLocked()
	if p.done != nil {
		return domain.ErrCaptureActive
	}
	if p.openCapture == nil {
		p.logger.Error().Msg("no capture device configured")
		return fmt.Errorf("%w: no capture device", domain.ErrDeviceUnavailable)
	}

	dev, err := p.openCapture()
	if err != nil {
		p.logger.Error().Err(err).Msg("capture device init failed")
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	p.capture, p.stop, p.done = dev, stop, done
	p.recording.Store(true)

	go p.captureLoop(dev, stop, done, onChunk)
	p.logger.Debug().Int("buffer", p.bufferSize).Msg("capture started")
	return nil
}

// captureLoop reads fixed-size buffers until stop is closed or the device fails.
func (p *Pipeline) captureLoop(dev core.CaptureDevice, stop <-chan struct{}, done chan<- struct{}, onChunk func([]byte)) {
	defer close(done)
	defer p.recording.Store(false)

	buf := make([]byte, p.bufferSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := dev.Read(buf)
		if n > 0 && onChunk != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Error().Err(err).Msg("capture read error, stopping")
			} else {
				p.logger.Info().Msg("capture device drained")
			}
			return
		}
	}
}

// StopCapture signals the loop, waits for the in-flight read to finish and
// releases the device. No-op when not capturing.
func (p *Pipeline) StopCapture() {
	p.capMu.Lock()
	defer p.capMu.Unlock()

	if p.done == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.releaseCaptureLocked()
	p.logger.Debug().Msg("capture stopped")
}

// CaptureDone is closed when the current capture loop exits, whether it
// was stopped or the device ended. Nil when not capturing.
func (p *Pipeline) CaptureDone() <-chan struct{} {
	p.capMu.Lock()
	defer p.capMu.Unlock()
	if p.done == nil {
		return nil
	}
	return p.done
}

// IsRecording reports whether the capture loop is running.
func (p *Pipeline) IsRecording() bool { return p.recording.Load() }

// reapLocked cleans up after a loop that exited on its own.
func (p *Pipeline) reapLocked() {
	if p.done == nil {
		return
	}
	select {
	case <-p.done:
		p.releaseCaptureLocked()
	default:
	}
}

func (p *Pipeline) releaseCaptureLocked() {
	if p.capture != nil {
		if err := p.capture.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("close capture device")
		}
	}
	p.capture, p.stop, p.done = nil, nil, nil
	p.recording.Store(false)
}
