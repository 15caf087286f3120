// Package wsnet binds core.Transport to the local network. Each device
// serves /nearby/<service-id> on its HTTP port and queries a list of seed
// addresses; a peer link is one WebSocket where binary messages carry
// payloads and text messages carry handshake control.
package wsnet

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/sltalkie/internal/adapters/eventq"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed       = errors.New("wsnet: transport closed")
	ErrNotConnected = errors.New("wsnet: not connected")
)

const (
	defaultQueryInterval = 3 * time.Second
	defaultWriteTimeout  = 5 * time.Second
	maxPayload           = 1 << 20
)

type Config struct {
	// ID is the local endpoint id; a short random id when empty.
	ID            domain.PeerID
	Seeds         []string
	QueryInterval time.Duration
	WriteTimeout  time.Duration
}

// NewEndpointID returns a short random endpoint id.
func NewEndpointID() domain.PeerID {
	return domain.PeerID(uuid.NewString()[:8])
}

type discovered struct {
	id   domain.PeerID
	name string
	addr string
}

type Transport struct {
	cfg    Config
	logger zerolog.Logger
	queue  *eventq.Queue
	client *http.Client
	dialer *websocket.Dialer

	mu          sync.Mutex
	closed      bool
	advertising bool
	advName     string
	advService  string
	discService string
	cancelQuery context.CancelFunc
	queryDone   chan struct{}
	seeds       []string
	bySeed      map[string]discovered
	byID        map[domain.PeerID]discovered
	links       map[domain.PeerID]*link
}

var _ core.Transport = (*Transport)(nil)

func New(cfg Config) *Transport {
	if cfg.ID == "" {
		cfg.ID = NewEndpointID()
	}
	if cfg.QueryInterval <= 0 {
		cfg.QueryInterval = defaultQueryInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Transport{
		cfg:    cfg,
		logger: log.With().Str("module", "wsnet").Str("endpoint", string(cfg.ID)).Logger(),
		queue:  eventq.New(),
		client: &http.Client{Timeout: 2 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 3 * time.Second},
		seeds:  append([]string(nil), cfg.Seeds...),
		bySeed: make(map[string]discovered),
		byID:   make(map[domain.PeerID]discovered),
		links:  make(map[domain.PeerID]*link),
	}
}

func (t *Transport) ID() domain.PeerID { return t.cfg.ID }

func (t *Transport) Events() <-chan core.Event { return t.queue.Events() }

// AddSeed adds a host:port to query on the next discovery round.
func (t *Transport) AddSeed(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.seeds {
		if s == addr {
			return
		}
	}
	t.seeds = append(t.seeds, addr)
}

func (t *Transport) StartAdvertising(ctx context.Context, name string, opts core.AdvertiseOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.advertising, t.advName, t.advService = true, name, opts.ServiceID
	t.logger.Info().Str("name", name).Str("service", opts.ServiceID).Stringer("strategy", opts.Strategy).Msg("advertising")
	return nil
}

func (t *Transport) StopAdvertising() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertising = false
}

// StartDiscovery queries every seed now and then on every QueryInterval.
func (t *Transport) StartDiscovery(ctx context.Context, opts core.DiscoveryOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.cancelQuery != nil {
		return nil
	}
	queryCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.discService, t.cancelQuery, t.queryDone = opts.ServiceID, cancel, done
	go t.queryLoop(queryCtx, opts.ServiceID, done)
	t.logger.Info().Str("service", opts.ServiceID).Int("seeds", len(t.seeds)).Msg("discovering")
	return nil
}

func (t *Transport) StopDiscovery() {
	t.mu.Lock()
	cancel, done := t.cancelQuery, t.queryDone
	t.cancelQuery, t.queryDone = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	t.mu.Lock()
	clear(t.bySeed)
	t.mu.Unlock()
}

// Close drops every link without notifying the manager and stops emitting.
func (t *Transport) Close() {
	t.StopDiscovery()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.advertising = false
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		l.local = true
		links = append(links, l)
	}
	clear(t.links)
	t.mu.Unlock()

	for _, l := range links {
		l.close()
	}
	t.queue.Close()
	t.logger.Info().Int("links", len(links)).Msg("transport closed")
}

func (t *Transport) emit(ev core.Event) {
	t.queue.Put(ev)
}
