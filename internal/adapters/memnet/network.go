// Package memnet is an in-process peer network. Every Node is a
// core.Transport; nodes on one Network see each other like devices in radio
// range. Used by tests and the single-host demo mode.
package memnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/sltalkie/internal/adapters/eventq"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed       = errors.New("memnet: node closed")
	ErrNotConnected = errors.New("memnet: not connected")
)

type pairKey struct{ lo, hi domain.PeerID }

func keyOf(a, b domain.PeerID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

type link struct {
	accepted  map[domain.PeerID]bool
	connected bool
}

type Network struct {
	mu    sync.Mutex
	nodes map[domain.PeerID]*Node
	links map[pairKey]*link
}

func NewNetwork() *Network {
	return &Network{
		nodes: make(map[domain.PeerID]*Node),
		links: make(map[pairKey]*link),
	}
}

// Join attaches a new node with the given endpoint id.
func (n *Network) Join(id domain.PeerID) *Node {
	node := &Node{net: n, id: id, box: eventq.New()}
	n.mu.Lock()
	defer n.mu.Unlock()
	if old, ok := n.nodes[id]; ok {
		n.leaveLocked(old)
	}
	n.nodes[id] = node
	log.Debug().Str("module", "memnet").Str("node", string(id)).Msg("joined")
	return node
}

// Sever drops the link between a and b as if they moved out of range.
func (n *Network) Sever(a, b domain.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	k := keyOf(a, b)
	if _, ok := n.links[k]; !ok {
		return
	}
	delete(n.links, k)
	if na, ok := n.nodes[a]; ok {
		na.box.Put(core.DisconnectedEvent(b))
	}
	if nb, ok := n.nodes[b]; ok {
		nb.box.Put(core.DisconnectedEvent(a))
	}
	log.Info().Str("module", "memnet").Str("a", string(a)).Str("b", string(b)).Msg("link severed")
}

// Connected reports whether a and b have an established link.
func (n *Network) Connected(a, b domain.PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.links[keyOf(a, b)]
	return ok && l.connected
}

func (n *Network) leaveLocked(node *Node) {
	node.closed = true
	for k := range n.links {
		if k.lo != node.id && k.hi != node.id {
			continue
		}
		other := k.lo
		if other == node.id {
			other = k.hi
		}
		delete(n.links, k)
		if o, ok := n.nodes[other]; ok {
			o.box.Put(core.DisconnectedEvent(node.id))
		}
	}
	if node.advertising {
		n.announceLocked(node, false)
	}
	node.advertising, node.discovering = false, false
	delete(n.nodes, node.id)
	node.box.Close()
}

// announceLocked tells every matching discoverer that node appeared or left.
func (n *Network) announceLocked(node *Node, found bool) {
	for id, other := range n.nodes {
		if id == node.id || !other.discovering || other.discService != node.advService {
			continue
		}
		if found {
			other.box.Put(core.FoundEvent(node.id, node.advName))
		} else {
			other.box.Put(core.LostEvent(node.id))
		}
	}
}

// Node is one endpoint on a Network.
type Node struct {
	net *Network
	id  domain.PeerID
	box *eventq.Queue

	// guarded by net.mu
	closed      bool
	advertising bool
	advName     string
	advService  string
	discovering bool
	discService string
}

var _ core.Transport = (*Node)(nil)

func (n *Node) ID() domain.PeerID { return n.id }

func (n *Node) Events() <-chan core.Event { return n.box.Events() }

func (n *Node) StartAdvertising(ctx context.Context, name string, opts core.AdvertiseOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.advertising, n.advName, n.advService = true, name, opts.ServiceID
	n.net.announceLocked(n, true)
	return nil
}

func (n *Node) StartDiscovery(ctx context.Context, opts core.DiscoveryOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.discovering, n.discService = true, opts.ServiceID
	for id, other := range n.net.nodes {
		if id != n.id && other.advertising && other.advService == opts.ServiceID {
			n.box.Put(core.FoundEvent(id, other.advName))
		}
	}
	return nil
}

func (n *Node) StopAdvertising() {
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	if !n.advertising {
		return
	}
	n.net.announceLocked(n, false)
	n.advertising = false
}

func (n *Node) StopDiscovery() {
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	n.discovering = false
}

// RequestConnection starts a handshake; both sides then get EventInitiated.
// Requesting a pair that is already linked or linking is a no-op.
func (n *Node) RequestConnection(ctx context.Context, localName string, peer domain.PeerID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	target, ok := n.net.nodes[peer]
	if !ok || peer == n.id || !target.advertising {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPeer, peer)
	}
	k := keyOf(n.id, peer)
	if _, exists := n.net.links[k]; exists {
		return nil
	}
	n.net.links[k] = &link{accepted: make(map[domain.PeerID]bool, 2)}
	n.box.Put(core.InitiatedEvent(peer, target.advName))
	target.box.Put(core.InitiatedEvent(n.id, localName))
	return nil
}

// AcceptConnection accepts a pending handshake. Once both sides accepted,
// both get EventResult with StatusOK.
func (n *Node) AcceptConnection(ctx context.Context, peer domain.PeerID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	l, ok := n.net.links[keyOf(n.id, peer)]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPeer, peer)
	}
	l.accepted[n.id] = true
	if l.connected || len(l.accepted) < 2 {
		return nil
	}
	l.connected = true
	n.box.Put(core.ResultEvent(peer, core.StatusOK))
	if other, ok := n.net.nodes[peer]; ok {
		other.box.Put(core.ResultEvent(n.id, core.StatusOK))
	}
	log.Debug().Str("module", "memnet").Str("a", string(n.id)).Str("b", string(peer)).Msg("link established")
	return nil
}

// Disconnect drops the link; only the remote side is notified.
func (n *Node) Disconnect(peer domain.PeerID) {
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	k := keyOf(n.id, peer)
	if _, ok := n.net.links[k]; !ok {
		return
	}
	delete(n.net.links, k)
	if other, ok := n.net.nodes[peer]; ok {
		other.box.Put(core.DisconnectedEvent(n.id))
	}
}

func (n *Node) Send(ctx context.Context, peer domain.PeerID, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	l, ok := n.net.links[keyOf(n.id, peer)]
	if !ok || !l.connected {
		return fmt.Errorf("%w: %s", ErrNotConnected, peer)
	}
	other, ok := n.net.nodes[peer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, peer)
	}
	other.box.Put(core.PayloadEvent(n.id, append([]byte(nil), payload...)))
	return nil
}

// Close leaves the network and closes the events channel.
func (n *Node) Close() {
	n.net.mu.Lock()
	defer n.net.mu.Unlock()
	if n.closed {
		return
	}
	n.net.leaveLocked(n)
	log.Debug().Str("module", "memnet").Str("node", string(n.id)).Msg("left")
}
