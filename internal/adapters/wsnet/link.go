package wsnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/gorilla/websocket"
)

type control struct {
	Type string `json:"type"`
}

// link is one WebSocket to a peer, pending until both sides accepted.
// Handshake flags are guarded by Transport.mu.
type link struct {
	peer   domain.PeerID
	name   string
	dialer domain.PeerID
	conn   *websocket.Conn

	writeMu sync.Mutex

	localAccepted  bool
	remoteAccepted bool
	connected      bool
	// local marks links closed on this side; replaced marks the loser of a dial race.
	local    bool
	replaced bool
}

func (l *link) write(mt int, data []byte, timeout time.Duration) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return l.conn.WriteMessage(mt, data)
}

func (l *link) close() { _ = l.conn.Close() }

// attach registers l. When a link to the same peer already exists, the one
// dialed by the lower endpoint id wins and a connected link is never
// replaced. fresh tells whether the peer is new to the manager.
func (t *Transport) attach(l *link) (attached, fresh bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, false
	}
	existing, ok := t.links[l.peer]
	if !ok {
		t.links[l.peer] = l
		return true, true
	}
	if existing.connected || existing.dialer <= l.dialer {
		return false, false
	}
	existing.replaced = true
	existing.close()
	l.localAccepted = existing.localAccepted
	if l.name == "" {
		l.name = existing.name
	}
	t.links[l.peer] = l
	t.logger.Debug().Str("peer", string(l.peer)).Str("dialer", string(l.dialer)).Msg("dial race, replacing link")
	return true, false
}

func (t *Transport) RequestConnection(ctx context.Context, localName string, peer domain.PeerID) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if _, ok := t.links[peer]; ok {
		t.mu.Unlock()
		return nil
	}
	d, ok := t.byID[peer]
	service := t.discService
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPeer, peer)
	}

	q := url.Values{"id": {string(t.cfg.ID)}, "name": {localName}}
	u := url.URL{Scheme: "ws", Host: d.addr, Path: "/nearby/" + service + "/connect", RawQuery: q.Encode()}
	conn, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			// The peer already holds the winning link to us.
			return nil
		}
		return fmt.Errorf("dial %s: %w", peer, err)
	}

	l := &link{peer: peer, name: d.name, dialer: t.cfg.ID, conn: conn}
	attached, fresh := t.attach(l)
	if !attached {
		_ = conn.Close()
		return nil
	}
	if fresh {
		t.emit(core.InitiatedEvent(peer, d.name))
	}
	t.startLink(l)
	return nil
}

func (t *Transport) AcceptConnection(ctx context.Context, peer domain.PeerID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	l, ok := t.links[peer]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownPeer, peer)
	}
	l.localAccepted = true
	t.mu.Unlock()

	if err := t.sendControl(l, "accept"); err != nil {
		return fmt.Errorf("accept %s: %w", peer, err)
	}
	t.maybeConnected(l)
	return nil
}

// Disconnect closes the link; only the remote side reports it.
func (t *Transport) Disconnect(peer domain.PeerID) {
	t.mu.Lock()
	l, ok := t.links[peer]
	if ok {
		l.local = true
		delete(t.links, peer)
	}
	t.mu.Unlock()
	if ok {
		_ = l.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Second)
		l.close()
	}
}

func (t *Transport) Send(ctx context.Context, peer domain.PeerID, payload []byte) error {
	t.mu.Lock()
	l, ok := t.links[peer]
	connected := ok && l.connected
	t.mu.Unlock()
	if !connected {
		return fmt.Errorf("%w: %s", ErrNotConnected, peer)
	}

	timeout := t.cfg.WriteTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.write(websocket.BinaryMessage, payload, timeout)
}

func (t *Transport) sendControl(l *link, typ string) error {
	b, err := json.Marshal(control{Type: typ})
	if err != nil {
		return err
	}
	return l.write(websocket.TextMessage, b, t.cfg.WriteTimeout)
}

// maybeConnected emits the result once both sides accepted.
func (t *Transport) maybeConnected(l *link) {
	t.mu.Lock()
	done := l.localAccepted && l.remoteAccepted && !l.connected && t.links[l.peer] == l
	if done {
		l.connected = true
	}
	t.mu.Unlock()
	if done {
		t.logger.Info().Str("peer", string(l.peer)).Msg("link established")
		t.emit(core.ResultEvent(l.peer, core.StatusOK))
	}
}

func (t *Transport) startLink(l *link) {
	t.mu.Lock()
	accepted := l.localAccepted
	t.mu.Unlock()
	if accepted {
		if err := t.sendControl(l, "accept"); err != nil {
			t.logger.Warn().Err(err).Str("peer", string(l.peer)).Msg("resend accept")
		}
	}
	l.conn.SetReadLimit(maxPayload)
	go t.readLoop(l)
}

func (t *Transport) readLoop(l *link) {
	defer t.dropLink(l)
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.logger.Debug().Err(err).Str("peer", string(l.peer)).Msg("read loop ended")
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			t.handleControl(l, data)
		case websocket.BinaryMessage:
			t.mu.Lock()
			connected := l.connected
			t.mu.Unlock()
			if !connected {
				t.logger.Debug().Str("peer", string(l.peer)).Msg("payload before handshake, dropping")
				continue
			}
			t.emit(core.PayloadEvent(l.peer, data))
		}
	}
}

func (t *Transport) handleControl(l *link, data []byte) {
	var c control
	if err := json.Unmarshal(data, &c); err != nil {
		t.logger.Warn().Err(err).Str("peer", string(l.peer)).Msg("bad control message")
		return
	}
	switch c.Type {
	case "accept":
		t.mu.Lock()
		l.remoteAccepted = true
		t.mu.Unlock()
		t.maybeConnected(l)
	default:
		t.logger.Warn().Str("type", c.Type).Str("peer", string(l.peer)).Msg("unknown control message")
	}
}

// dropLink reports a link that went away on its own: Disconnected when it
// was established, a failed Result while still pending. The peer is
// forgotten so the next discovery round reports it again.
func (t *Transport) dropLink(l *link) {
	l.close()
	t.mu.Lock()
	if t.links[l.peer] == l {
		delete(t.links, l.peer)
	}
	silent := l.local || l.replaced || t.closed
	connected := l.connected
	t.mu.Unlock()
	if silent {
		return
	}
	if connected {
		t.logger.Info().Str("peer", string(l.peer)).Msg("link lost")
		t.emit(core.DisconnectedEvent(l.peer))
	} else {
		t.emit(core.ResultEvent(l.peer, core.StatusError))
	}

	t.mu.Lock()
	t.forgetLocked(l.peer)
	t.mu.Unlock()
}
