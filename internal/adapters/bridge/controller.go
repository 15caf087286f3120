package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	errUnknownMessage = errors.New("unknown message")
	errRateLimited    = errors.New("rate limited")
)

type Options struct {
	DefaultLocation domain.Location
	ReadLimit       int64
	PingPeriod      time.Duration
	// RecordLimit caps start_recording attempts per client per second.
	RecordLimit int
}

// Controller owns the UI WebSocket channel and the commands it accepts.
type Controller struct {
	hub       *Hub
	engine    Engine
	keepAlive core.KeepAlive
	limiter   *RateLimiter
	opts      Options
}

func NewController(hub *Hub, engine Engine, keepAlive core.KeepAlive, opts Options) *Controller {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.RecordLimit <= 0 {
		opts.RecordLimit = 5
	}
	return &Controller{
		hub:       hub,
		engine:    engine,
		keepAlive: keepAlive,
		limiter:   NewRateLimiter(opts.RecordLimit, time.Second),
		opts:      opts,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleEvents upgrades the request and serves one UI client until ctx is
// done or the socket closes.
func (ctl *Controller) HandleEvents(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "bridge").Str("client", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("ws upgrade")
		return
	}
	client := newWSClient(token, ws)
	ctl.sendJSON(client, envelope{Type: "hello", Data: ctl.snapshot()})
	ctl.hub.Subscribe(client)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, client)
	go ctl.readPump(ctx, cancel, client)
}

type snapshot struct {
	Nickname   string           `json:"nickname"`
	DataDir    string           `json:"data_dir"`
	Recording  bool             `json:"recording"`
	Background bool             `json:"background"`
	Status     domain.Status    `json:"status"`
	Peers      []domain.Peer    `json:"peers"`
	Connected  []string         `json:"connected"`
	Messages   []domain.Message `json:"messages"`
}

func (ctl *Controller) snapshot() snapshot {
	return snapshot{
		Nickname:   ctl.engine.Nickname(),
		DataDir:    ctl.engine.DataDir(),
		Recording:  ctl.engine.IsRecording(),
		Background: ctl.background(),
		Status:     ctl.hub.Status(),
		Peers:      ctl.engine.Peers(),
		Connected:  ctl.engine.ConnectedPeers(),
		Messages:   ctl.hub.Messages(),
	}
}

func (ctl *Controller) background() bool {
	if b, ok := ctl.keepAlive.(interface{ Enabled() bool }); ok {
		return b.Enabled()
	}
	return false
}

func (ctl *Controller) sendJSON(c subscriber, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("marshal reply")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "bridge").Msg("reply dropped")
	}
}

func (ctl *Controller) sendError(c subscriber, cmd string, err error) {
	ctl.sendJSON(c, map[string]any{
		"type":    "error",
		"command": cmd,
		"error":   err.Error(),
	})
}
