package audio

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16

	// DefaultBufferSize is 40ms of audio in the fixed format.
	DefaultBufferSize = 1280
)

// Pipeline owns the capture device for outbound recordings and one shared
// output device used for live monitoring and file playback.
type Pipeline struct {
	openCapture core.CaptureOpener
	openOutput  core.OutputOpener
	bufferSize  int
	logger      zerolog.Logger

	capMu     sync.Mutex
	capture   core.CaptureDevice
	stop      chan struct{}
	done      chan struct{}
	recording atomic.Bool

	// outMu serializes lazy creation and writes. It does not keep streams
	// apart: bytes from different senders are mixed into one output stream.
	outMu  sync.Mutex
	output core.OutputDevice
}

type Option func(*Pipeline)

// WithBufferSize sets the capture and file playback read size in bytes.
func WithBufferSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

func NewPipeline(capture core.CaptureOpener, output core.OutputOpener, opts ...Option) *Pipeline {
	p := &Pipeline{
		openCapture: capture,
		openOutput:  output,
		bufferSize:  DefaultBufferSize,
		logger:      log.With().Str("module", "audio").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) BufferSize() int { return p.bufferSize }

// Release stops capture if active and releases the output device.
func (p *Pipeline) Release() {
	p.StopCapture()

	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.output != nil {
		if err := p.output.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("close output device")
		}
		p.output = nil
	}
	p.logger.Info().Msg("pipeline released")
}
