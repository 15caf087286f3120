// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
)

// Metrics holds the collectors. Each instance owns its registry.
type Metrics struct {
	reg *prometheus.Registry

	MessagesReceived  prometheus.Counter
	MessagesDiscarded prometheus.Counter
	PeerTransitions   *prometheus.CounterVec
	ConnectedPeers    prometheus.Gauge
	StatusChanges     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "sltalkie_messages_received_total",
			Help: "Inbound voice messages started by peers",
		}),
		MessagesDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "sltalkie_messages_discarded_total",
			Help: "Inbound voice messages dropped before END",
		}),
		PeerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sltalkie_peer_transitions_total",
			Help: "Peer state changes by new state",
		}, []string{"state"}),
		ConnectedPeers: f.NewGauge(prometheus.GaugeOpts{
			Name: "sltalkie_connected_peers",
			Help: "Peers currently in the connected state",
		}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sltalkie_status_changes_total",
			Help: "Engine status reports by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Mount serves the registry on GET /metrics.
func (m *Metrics) Mount(r gin.IRouter) {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	r.GET("/metrics", gin.WrapH(h))
}

// Sink counts engine events and forwards them to next.
type Sink struct {
	m    *Metrics
	next core.EventSink

	mu        sync.Mutex
	connected map[domain.PeerID]struct{}
}

var _ core.EventSink = (*Sink)(nil)

func (m *Metrics) Wrap(next core.EventSink) *Sink {
	if next == nil {
		next = core.NopSink{}
	}
	return &Sink{m: m, next: next, connected: make(map[domain.PeerID]struct{})}
}

func (s *Sink) OnMessageReceived(msg domain.Message) {
	s.m.MessagesReceived.Inc()
	s.next.OnMessageReceived(msg)
}

func (s *Sink) OnMessageDiscarded(msg domain.Message) {
	s.m.MessagesDiscarded.Inc()
	s.next.OnMessageDiscarded(msg)
}

func (s *Sink) OnPeerChanged(p domain.Peer) {
	s.m.PeerTransitions.WithLabelValues(p.State.String()).Inc()
	s.mu.Lock()
	if p.State == domain.PeerConnected {
		s.connected[p.ID] = struct{}{}
	} else {
		delete(s.connected, p.ID)
	}
	s.m.ConnectedPeers.Set(float64(len(s.connected)))
	s.mu.Unlock()
	s.next.OnPeerChanged(p)
}

func (s *Sink) OnStatus(st domain.Status) {
	s.m.StatusChanges.WithLabelValues(string(st.Kind)).Inc()
	s.next.OnStatus(st)
}
