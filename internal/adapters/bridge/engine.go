package bridge

import (
	"context"

	"github.com/dkeye/sltalkie/internal/domain"
)

// Engine is the part of the session manager the UI drives.
type Engine interface {
	StartLocalRecording(ctx context.Context, loc domain.Location) error
	StopLocalRecording(ctx context.Context)
	IsRecording() bool
	PlayFile(ctx context.Context, path string, onComplete func(error))
	Peers() []domain.Peer
	ConnectedPeers() []string
	Nickname() string
	DataDir() string
}
