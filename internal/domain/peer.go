// Package domain contains entities without logic, just meta-data
package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const MaxNicknameLen = 36

type PeerID string

type PeerState int

const (
	PeerDiscovered PeerState = iota
	PeerConnectionPending
	PeerConnected
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerDiscovered:
		return "discovered"
	case PeerConnectionPending:
		return "connection_pending"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s PeerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Peer is one remote endpoint as seen by the session manager.
// Disconnected is only ever reported to observers; such peers are not kept.
type Peer struct {
	ID    PeerID    `json:"id"`
	Name  string    `json:"name,omitempty"`
	State PeerState `json:"state"`
	Since time.Time `json:"since"`
}

// ValidateNickname checks the name this device advertises under.
func ValidateNickname(name string) error {
	if len(name) == 0 {
		return ErrNicknameEmpty
	}
	if len(name) > MaxNicknameLen {
		return ErrNicknameTooLong
	}
	return nil
}

// RandomNickname mirrors the "User-<n>" names devices get when none is configured.
func RandomNickname() string {
	return fmt.Sprintf("User-%d", rand.IntN(1000))
}
