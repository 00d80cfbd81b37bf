package relay

import (
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/posecast/internal/pose"
)

var (
	ErrActorAlreadyBound = errors.New("relay: actor already bound to a live connection")
	ErrPeerAlreadyBound  = errors.New("relay: peer id already joined")
)

// Hub is the set of joined peers. It holds connection bindings only.
type Hub struct {
	mu      sync.RWMutex
	byPeer  map[string]*peerConn
	byActor map[pose.ActorID]*peerConn
}

func NewHub() *Hub {
	return &Hub{
		byPeer:  make(map[string]*peerConn),
		byActor: make(map[pose.ActorID]*peerConn),
	}
}

func (h *Hub) join(p *peerConn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byPeer[p.peerID]; ok {
		return ErrPeerAlreadyBound
	}
	if _, ok := h.byActor[p.actor]; ok {
		return ErrActorAlreadyBound
	}
	h.byPeer[p.peerID] = p
	h.byActor[p.actor] = p
	return nil
}

// leave unbinds p. It reports false when p was not the bound connection.
func (h *Hub) leave(p *peerConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byPeer[p.peerID] != p {
		return false
	}
	delete(h.byPeer, p.peerID)
	delete(h.byActor, p.actor)
	return true
}

// depart unbinds p and, in the same critical section, enqueues farewell for
// every remaining peer. Nothing is sent when p was not the bound connection
// or farewell is nil.
func (h *Hub) depart(p *peerConn, farewell []byte) (bound bool, queued, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byPeer[p.peerID] != p {
		return false, 0, 0
	}
	delete(h.byPeer, p.peerID)
	delete(h.byActor, p.actor)
	if farewell == nil {
		return true, 0, 0
	}
	for _, other := range h.byPeer {
		if other.enqueue(farewell) {
			queued++
		} else {
			dropped++
		}
	}
	return true, queued, dropped
}

// broadcast enqueues payload for every joined peer except from.
func (h *Hub) broadcast(from *peerConn, payload []byte) (queued, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.byPeer {
		if p == from {
			continue
		}
		if p.enqueue(payload) {
			queued++
		} else {
			dropped++
		}
	}
	return queued, dropped
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byPeer)
}

// Snapshot lists joined peers ordered by peer id.
func (h *Hub) Snapshot() []PeerInfo {
	h.mu.RLock()
	out := make([]PeerInfo, 0, len(h.byPeer))
	for _, p := range h.byPeer {
		out = append(out, p.info())
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}
