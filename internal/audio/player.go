package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
)

// Play writes raw samples to the shared output device, creating it on first use.
func (p *Pipeline) Play(samples []byte) {
	if len(samples) == 0 {
		return
	}
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if err := p.writeLocked(samples); err != nil {
		p.logger.Error().Err(err).Int("len", len(samples)).Msg("play chunk")
	}
}

// PlayFile streams a recording through the output device on its own
// goroutine. onComplete is always called, with a non-nil error when the file
// could not be played to the end.
func (p *Pipeline) PlayFile(ctx context.Context, path string, onComplete func(error)) {
	go func() {
		err := p.playFile(ctx, path)
		if err != nil {
			p.logger.Error().Err(err).Str("file", path).Msg("play file")
		} else {
			p.logger.Debug().Str("file", path).Msg("play file complete")
		}
		if onComplete != nil {
			onComplete(err)
		}
	}()
}

func (p *Pipeline) playFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	buf := make([]byte, p.bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			p.outMu.Lock()
			werr := p.writeLocked(buf[:n])
			p.outMu.Unlock()
			if werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read recording: %w", rerr)
		}
	}
}

// writeLocked drops the device after a failed write so the next call reopens it.
func (p *Pipeline) writeLocked(b []byte) error {
	out, err := p.outputLocked()
	if err != nil {
		return err
	}
	if _, err := out.Write(b); err != nil {
		_ = out.Close()
		p.output = nil
		return fmt.Errorf("write output device: %w", err)
	}
	return nil
}

func (p *Pipeline) outputLocked() (core.OutputDevice, error) {
	if p.output != nil {
		return p.output, nil
	}
	if p.openOutput == nil {
		return nil, fmt.Errorf("%w: no output device", domain.ErrDeviceUnavailable)
	}
	out, err := p.openOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	p.output = out
	p.logger.Info().Msg("output device opened")
	return out, nil
}
