package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, "com.floodcomms", cfg.ServiceID)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 1280, cfg.Audio.BufferSize)
	assert.Equal(t, "wsnet", cfg.Transport.Kind)
	assert.Equal(t, 3*time.Second, cfg.Transport.QueryInterval)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, domain.Location{}, cfg.Loc())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: 9090
nickname: alice
log_level: debug
retry_backoff: 500ms
audio:
  buffer_size: 640
  capture: none
  output: none
transport:
  kind: memnet
  seeds: ["10.0.0.2:8080", "10.0.0.3:8080"]
location:
  latitude: 6.9
  longitude: 79.8
`)
	cfg, _, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "alice", cfg.Nickname)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 640, cfg.Audio.BufferSize)
	assert.Equal(t, "memnet", cfg.Transport.Kind)
	assert.Equal(t, []string{"10.0.0.2:8080", "10.0.0.3:8080"}, cfg.Transport.Seeds)
	assert.Equal(t, domain.Location{Latitude: 6.9, Longitude: 79.8}, cfg.Loc())
}

func TestEnvAndFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "port: 9090\nnickname: alice\n")
	t.Setenv("SLTALKIE_PORT", "9191")
	t.Setenv("SLTALKIE_AUDIO_BUFFER_SIZE", "2560")

	cfg, _, err := Load([]string{"--config", path, "--nickname", "bob", "--seeds", "a:1,b:2"})
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, 2560, cfg.Audio.BufferSize)
	assert.Equal(t, "bob", cfg.Nickname)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Transport.Seeds)
}

func TestUnchangedFlagsDoNotShadowFile(t *testing.T) {
	path := writeConfig(t, "port: 9090\n")
	cfg, _, err := Load([]string{"--config", path, "--nickname", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "port: 70000\n"},
		{"nickname", "nickname: " + "abcdefghijabcdefghijabcdefghijabcdefghij" + "\n"},
		{"odd buffer", "audio:\n  buffer_size: 641\n"},
		{"capture", "audio:\n  capture: pulse\n"},
		{"file capture without file", "audio:\n  capture: file\n"},
		{"output", "audio:\n  output: pulse\n"},
		{"transport", "transport:\n  kind: bluetooth\n"},
		{"log level", "log_level: loud\n"},
		{"backoff", "retry_backoff: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load([]string{"--config", writeConfig(t, tt.body)})
			assert.Error(t, err)
		})
	}
}

func TestBadFlag(t *testing.T) {
	_, err := NewLoader([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	l, err := NewLoader([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, path, l.File())

	var (
		mu  sync.Mutex
		got *Config
	)
	l.Watch(func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		got = c
	})

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Level() == zerolog.DebugLevel
	}, 3*time.Second, 10*time.Millisecond)
}
