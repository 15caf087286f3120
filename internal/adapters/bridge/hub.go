// Package bridge exposes the engine to the local browser UI: an event hub
// implementing core.EventSink, a WebSocket command channel and a small REST API.
package bridge

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	EventMessageReceived  = "message_received"
	EventMessageDiscarded = "message_discarded"
	EventPeerChanged      = "peer_changed"
	EventStatus           = "status"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// subscriber must not block.
type subscriber interface {
	TrySend([]byte) error
}

// Hub keeps what the UI needs to render and fans engine events out to
// every connected UI client.
type Hub struct {
	mu       sync.RWMutex
	messages []domain.Message
	byID     map[domain.MessageID]int
	status   domain.Status
	subs     map[subscriber]struct{}
}

var _ core.EventSink = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		byID:   make(map[domain.MessageID]int),
		status: domain.Status{Kind: domain.StatusReady},
		subs:   make(map[subscriber]struct{}),
	}
}

func (h *Hub) OnMessageReceived(m domain.Message) {
	h.mu.Lock()
	h.byID[m.ID] = len(h.messages)
	h.messages = append(h.messages, m)
	h.mu.Unlock()
	log.Info().Str("module", "bridge.hub").Str("message", string(m.ID)).Str("from", string(m.EndpointID)).Msg("message received")
	h.publish(EventMessageReceived, m)
}

func (h *Hub) OnMessageDiscarded(m domain.Message) {
	h.mu.Lock()
	if i, ok := h.byID[m.ID]; ok {
		h.messages = slices.Delete(h.messages, i, i+1)
		h.reindexLocked()
	}
	h.mu.Unlock()
	h.publish(EventMessageDiscarded, m)
}

func (h *Hub) OnPeerChanged(p domain.Peer) {
	h.publish(EventPeerChanged, p)
}

func (h *Hub) OnStatus(s domain.Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
	log.Info().Str("module", "bridge.hub").Str("kind", string(s.Kind)).Str("detail", s.Detail).Msg("status")
	h.publish(EventStatus, s)
}

func (h *Hub) reindexLocked() {
	clear(h.byID)
	for i, m := range h.messages {
		h.byID[m.ID] = i
	}
}

// Messages returns the history, oldest first.
func (h *Hub) Messages() []domain.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.messages)
}

func (h *Hub) Message(id domain.MessageID) (domain.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i, ok := h.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return h.messages[i], true
}

// MessageByPath finds a message by its recording path.
func (h *Hub) MessageByPath(path string) (domain.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.messages {
		if m.FilePath == path {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (h *Hub) Status() domain.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *Hub) Subscribe(s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) Unsubscribe(s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishResult reports one fan-out to UI clients.
type PublishResult struct {
	SentTo  int
	Dropped int
}

func (h *Hub) publish(typ string, data any) PublishResult {
	b, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "bridge.hub").Str("type", typ).Msg("marshal event")
		return PublishResult{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := PublishResult{}
	for s := range h.subs {
		if err := s.TrySend(b); err != nil {
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	if res.Dropped > 0 {
		log.Warn().Str("module", "bridge.hub").Str("type", typ).Int("dropped", res.Dropped).Msg("slow UI clients, event dropped")
	}
	return res
}
