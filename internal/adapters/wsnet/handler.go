package wsnet

import (
	"net/http"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Mount registers the advertising endpoints on r.
func (t *Transport) Mount(r gin.IRouter) {
	g := r.Group("/nearby/:service")
	g.GET("/info", t.handleInfo)
	g.GET("/connect", t.handleConnect)
}

func (t *Transport) advertised(service string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advName, t.advertising && !t.closed && t.advService == service
}

func (t *Transport) handleInfo(c *gin.Context) {
	service := c.Param("service")
	name, ok := t.advertised(service)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, endpointInfo{ID: t.cfg.ID, Name: name, Service: service})
}

func (t *Transport) handleConnect(c *gin.Context) {
	if _, ok := t.advertised(c.Param("service")); !ok {
		c.Status(http.StatusNotFound)
		return
	}
	peer := domain.PeerID(c.Query("id"))
	name := c.Query("name")
	if peer == "" || peer == t.cfg.ID {
		c.Status(http.StatusBadRequest)
		return
	}

	t.mu.Lock()
	existing, busy := t.links[peer]
	conflict := busy && (existing.connected || existing.dialer <= peer)
	t.mu.Unlock()
	if conflict {
		c.Status(http.StatusConflict)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.logger.Error().Err(err).Str("peer", string(peer)).Msg("ws upgrade")
		return
	}
	l := &link{peer: peer, name: name, dialer: peer, conn: ws}
	attached, fresh := t.attach(l)
	if !attached {
		_ = ws.Close()
		return
	}
	t.logger.Info().Str("peer", string(peer)).Str("name", name).Msg("incoming connection")
	if fresh {
		t.emit(core.InitiatedEvent(peer, name))
	}
	t.startLink(l)
}
