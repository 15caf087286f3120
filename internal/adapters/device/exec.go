// Package device binds the audio pipeline to real sound hardware through the
// ALSA command-line tools, plus file and null backends for headless runs.
package device

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/rs/zerolog/log"
)

// alsaArgs selects raw S16_LE mono at the pipeline's sample rate.
func alsaArgs(dev string) []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", strconv.Itoa(audio.Channels), "-r", strconv.Itoa(audio.SampleRate)}
	if dev != "" {
		args = append(args, "-D", dev)
	}
	return append(args, "-")
}

// procStream is a child process whose stdin or stdout is the audio stream.
type procStream struct {
	cmd  *exec.Cmd
	r    io.ReadCloser
	w    io.WriteCloser
	once sync.Once
	err  error
}

func (p *procStream) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *procStream) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *procStream) Close() error {
	p.once.Do(func() {
		if p.w != nil {
			_ = p.w.Close()
		}
		if p.cmd.Process != nil && p.r != nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.err = err
		}
		log.Debug().Str("module", "device").Str("cmd", p.cmd.Path).Msg("audio process exited")
	})
	return p.err
}

// ARecord opens the microphone through arecord.
func ARecord(bin, dev string) core.CaptureOpener {
	if bin == "" {
		bin = "arecord"
	}
	return func() (core.CaptureDevice, error) {
		cmd := exec.Command(bin, alsaArgs(dev)...)
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", bin, err)
		}
		log.Info().Str("module", "device").Str("bin", bin).Str("device", dev).Msg("capture process started")
		return &procStream{cmd: cmd, r: out}, nil
	}
}

// APlay opens the speaker through aplay.
func APlay(bin, dev string) core.OutputOpener {
	if bin == "" {
		bin = "aplay"
	}
	return func() (core.OutputDevice, error) {
		cmd := exec.Command(bin, alsaArgs(dev)...)
		in, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", bin, err)
		}
		log.Info().Str("module", "device").Str("bin", bin).Str("device", dev).Msg("output process started")
		return &procStream{cmd: cmd, w: in}, nil
	}
}
