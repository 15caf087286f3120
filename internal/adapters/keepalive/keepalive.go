// Package keepalive tracks whether the daemon runs in background mode.
// There is no OS wake lock on this platform; the state is logged and
// reported to the UI.
package keepalive

import (
	"sync/atomic"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/rs/zerolog/log"
)

type Tracker struct {
	enabled atomic.Bool
	changes atomic.Int64
}

var _ core.KeepAlive = (*Tracker)(nil)

func New(enabled bool) *Tracker {
	t := &Tracker{}
	t.enabled.Store(enabled)
	return t
}

func (t *Tracker) SetBackgroundMode(enabled bool) {
	if t.enabled.Swap(enabled) == enabled {
		return
	}
	t.changes.Add(1)
	log.Info().Str("module", "keepalive").Bool("background", enabled).Msg("background mode changed")
}

func (t *Tracker) Enabled() bool { return t.enabled.Load() }

// Changes counts effective mode switches.
func (t *Tracker) Changes() int64 { return t.changes.Load() }
