package app

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/rs/zerolog/log"
)

// inboundSession is one message being received from a connected peer.
type inboundSession struct {
	msg  domain.Message
	sink *audio.FileSink
}

// registry holds peers and their inbound sessions behind one lock.
// Callers do file and transport I/O outside of it.
type registry struct {
	mu      sync.RWMutex
	peers   map[domain.PeerID]*domain.Peer
	inbound map[domain.PeerID]*inboundSession
}

func newRegistry() *registry {
	return &registry{
		peers:   make(map[domain.PeerID]*domain.Peer),
		inbound: make(map[domain.PeerID]*inboundSession),
	}
}

// discover adds an unknown peer as Discovered. Known peers are left alone.
func (r *registry) discover(id domain.PeerID, name string, now time.Time) (domain.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		return *p, false
	}
	p := &domain.Peer{ID: id, Name: name, State: domain.PeerDiscovered, Since: now}
	r.peers[id] = p
	log.Debug().Str("module", "app.registry").Str("peer", string(id)).Str("name", name).Msg("peer discovered")
	return *p, true
}

// upsert sets the state of id, creating the peer if needed.
func (r *registry) upsert(id domain.PeerID, name string, state domain.PeerState, now time.Time) domain.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		p = &domain.Peer{ID: id}
		r.peers[id] = p
	}
	if name != "" {
		p.Name = name
	}
	if p.State != state || !ok {
		p.State = state
		p.Since = now
	}
	return *p
}

// advance moves id to state only if it is currently in from.
func (r *registry) advance(id domain.PeerID, from, to domain.PeerState, now time.Time) (domain.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || p.State != from {
		return domain.Peer{}, false
	}
	p.State = to
	p.Since = now
	return *p, true
}

// remove drops the peer and hands back its open inbound session, if any.
func (r *registry) remove(id domain.PeerID) (domain.Peer, *inboundSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.inbound[id]
	delete(r.inbound, id)
	p, ok := r.peers[id]
	if !ok {
		return domain.Peer{}, sess, false
	}
	delete(r.peers, id)
	log.Debug().Str("module", "app.registry").Str("peer", string(id)).Msg("peer removed")
	return *p, sess, true
}

// removeIf drops the peer only while it is in state.
func (r *registry) removeIf(id domain.PeerID, state domain.PeerState) (domain.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || p.State != state {
		return domain.Peer{}, false
	}
	delete(r.peers, id)
	return *p, true
}

func (r *registry) state(id domain.PeerID) (domain.PeerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return 0, false
	}
	return p.State, true
}

// connected returns the ids of Connected peers in id order.
func (r *registry) connected() []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PeerID, 0, len(r.peers))
	for id, p := range r.peers {
		if p.State == domain.PeerConnected {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (r *registry) snapshot() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b domain.Peer) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// attachInbound binds sess to a Connected peer. It fails when the peer went
// away or another session is already open.
func (r *registry) attachInbound(id domain.PeerID, sess *inboundSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || p.State != domain.PeerConnected {
		return false
	}
	if _, busy := r.inbound[id]; busy {
		return false
	}
	r.inbound[id] = sess
	return true
}

func (r *registry) inboundOf(id domain.PeerID) *inboundSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inbound[id]
}

func (r *registry) takeInbound(id domain.PeerID) *inboundSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.inbound[id]
	delete(r.inbound, id)
	return sess
}

// drain empties the registry, returning everything that was in it.
func (r *registry) drain() ([]domain.Peer, []*inboundSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]domain.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, *p)
	}
	sessions := make([]*inboundSession, 0, len(r.inbound))
	for _, s := range r.inbound {
		sessions = append(sessions, s)
	}
	clear(r.peers)
	clear(r.inbound)
	return peers, sessions
}
