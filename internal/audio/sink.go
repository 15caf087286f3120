package audio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileSink persists one received stream verbatim. Storage failures are
// logged and never returned: a failed sink drops the remaining bytes so the
// live playback path keeps running.
type FileSink struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	written int64
	logger  zerolog.Logger
}

// StartSavingTo creates (or truncates) path and returns a sink appending to it.
func (p *Pipeline) StartSavingTo(path string) *FileSink {
	s := &FileSink{
		path:   path,
		logger: p.logger.With().Str("file", path).Logger(),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error().Err(err).Msg("create recording dir")
		return s
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("create recording file")
		return s
	}
	s.f = f
	return s
}

func (s *FileSink) Path() string { return s.path }

// Written returns the number of bytes persisted so far.
func (s *FileSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Append writes a chunk. After the first failure the sink stops writing so
// the file stays a clean prefix of the stream.
func (s *FileSink) Append(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return
	}
	n, err := s.f.Write(chunk)
	s.written += int64(n)
	if err != nil {
		s.logger.Error().Err(err).Int64("written", s.written).Msg("write recording chunk, truncating")
		s.closeLocked()
	}
}

// Close flushes and closes the file. Safe to call more than once.
func (s *FileSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Discard closes the sink and removes whatever was written.
func (s *FileSink) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn().Err(err).Msg("remove discarded recording")
	}
}

func (s *FileSink) closeLocked() {
	if s.f == nil {
		return
	}
	if err := s.f.Sync(); err != nil {
		s.logger.Warn().Err(err).Msg("sync recording")
	}
	if err := s.f.Close(); err != nil {
		s.logger.Error().Err(err).Msg("close recording")
	}
	s.f = nil
}
