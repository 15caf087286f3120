package core

import (
	"context"
	"fmt"

	"github.com/dkeye/sltalkie/internal/domain"
)

// Strategy is the peer topology requested from the transport.
type Strategy int

const (
	// StrategyCluster lets every advertiser connect to every discoverer, no hub.
	StrategyCluster Strategy = iota + 1
)

func (s Strategy) String() string {
	if s == StrategyCluster {
		return "cluster"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

type AdvertiseOptions struct {
	ServiceID string
	Strategy  Strategy
}

type DiscoveryOptions struct {
	ServiceID string
	Strategy  Strategy
}

// ConnStatus is the outcome reported with EventResult.
type ConnStatus int

const (
	StatusOK ConnStatus = iota
	StatusRejected
	StatusError
)

func (s ConnStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRejected:
		return "rejected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type EventKind int

const (
	EventFound EventKind = iota + 1
	EventLost
	EventInitiated
	EventResult
	EventDisconnected
	EventPayload
)

func (k EventKind) String() string {
	switch k {
	case EventFound:
		return "found"
	case EventLost:
		return "lost"
	case EventInitiated:
		return "initiated"
	case EventResult:
		return "result"
	case EventDisconnected:
		return "disconnected"
	case EventPayload:
		return "payload"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one transport callback. Only the fields relevant to Kind are set:
// Name for Found/Initiated, Status for Result, Payload for Payload.
type Event struct {
	Kind    EventKind
	Peer    domain.PeerID
	Name    string
	Status  ConnStatus
	Payload []byte
}

func FoundEvent(peer domain.PeerID, name string) Event {
	return Event{Kind: EventFound, Peer: peer, Name: name}
}

func LostEvent(peer domain.PeerID) Event { return Event{Kind: EventLost, Peer: peer} }

func InitiatedEvent(peer domain.PeerID, name string) Event {
	return Event{Kind: EventInitiated, Peer: peer, Name: name}
}

func ResultEvent(peer domain.PeerID, status ConnStatus) Event {
	return Event{Kind: EventResult, Peer: peer, Status: status}
}

func DisconnectedEvent(peer domain.PeerID) Event {
	return Event{Kind: EventDisconnected, Peer: peer}
}

func PayloadEvent(peer domain.PeerID, payload []byte) Event {
	return Event{Kind: EventPayload, Peer: peer, Payload: payload}
}

// Transport is the peer discovery and payload capability the engine runs on.
// Owned by the adapter. Events for a single peer are delivered in order.
type Transport interface {
	StartAdvertising(ctx context.Context, name string, opts AdvertiseOptions) error
	StartDiscovery(ctx context.Context, opts DiscoveryOptions) error
	StopAdvertising()
	StopDiscovery()

	RequestConnection(ctx context.Context, localName string, peer domain.PeerID) error
	AcceptConnection(ctx context.Context, peer domain.PeerID) error
	Disconnect(peer domain.PeerID)

	// Send delivers one discrete payload to one connected peer.
	Send(ctx context.Context, peer domain.PeerID, payload []byte) error
	// Events is closed by the adapter when the transport shuts down.
	Events() <-chan Event
}

// KeepAlive extends process lifetime while the app runs in background.
type KeepAlive interface {
	SetBackgroundMode(enabled bool)
}
