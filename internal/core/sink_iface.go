package core

import "github.com/dkeye/sltalkie/internal/domain"

// EventSink receives engine events destined for the UI layer.
// Implementations must not block: they are called from transport callbacks.
type EventSink interface {
	// OnMessageReceived fires once per inbound session, at START time.
	OnMessageReceived(domain.Message)
	// OnMessageDiscarded fires when an inbound session is dropped before END.
	OnMessageDiscarded(domain.Message)
	OnPeerChanged(domain.Peer)
	OnStatus(domain.Status)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) OnMessageReceived(domain.Message)  {}
func (NopSink) OnMessageDiscarded(domain.Message) {}
func (NopSink) OnPeerChanged(domain.Peer)         {}
func (NopSink) OnStatus(domain.Status)            {}
