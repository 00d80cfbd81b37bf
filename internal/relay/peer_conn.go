package relay

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/rs/zerolog/log"
)

// PeerInfo is the admin view of one joined peer.
type PeerInfo struct {
	PeerID     string    `json:"peer_id"`
	ActorID    string    `json:"actor_id"`
	RemoteAddr string    `json:"remote_addr"`
	Transport  string    `json:"transport"`
	JoinedAt   time.Time `json:"joined_at"`
	FramesIn   uint64    `json:"frames_in"`
	FramesOut  uint64    `json:"frames_out"`
	Dropped    uint64    `json:"dropped"`
}

// peerConn is one joined connection and its ordered outbound queue.
type peerConn struct {
	peerID    string
	actor     pose.ActorID
	conn      net.Conn
	transport string
	joinedAt  time.Time

	out    chan []byte
	mu     sync.Mutex
	closed bool
	done   chan struct{}

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	dropped   atomic.Uint64
}

func newPeerConn(peerID string, actor pose.ActorID, conn net.Conn, transport string, depth int) *peerConn {
	return &peerConn{
		peerID:    peerID,
		actor:     actor,
		conn:      conn,
		transport: transport,
		joinedAt:  time.Now(),
		out:       make(chan []byte, depth),
		done:      make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the queue is full or closed.
func (p *peerConn) enqueue(payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.out <- payload:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// close stops the queue; the writer drains what is already queued.
func (p *peerConn) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.out)
}

// writeLoop is the only writer to conn after the join ack.
func (p *peerConn) writeLoop(writeTimeout time.Duration) {
	defer close(p.done)
	for payload := range p.out {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := p.conn.Write(payload); err != nil {
			log.Debug().
				Str("peer_id", p.peerID).
				Err(err).
				Msg("relay.peerConn.writeLoop write failed, closing")
			_ = p.conn.Close()
			for range p.out {
				p.dropped.Add(1)
			}
			return
		}
		p.framesOut.Add(1)
	}
}

func (p *peerConn) info() PeerInfo {
	return PeerInfo{
		PeerID:     p.peerID,
		ActorID:    p.actor.String(),
		RemoteAddr: p.conn.RemoteAddr().String(),
		Transport:  p.transport,
		JoinedAt:   p.joinedAt,
		FramesIn:   p.framesIn.Load(),
		FramesOut:  p.framesOut.Load(),
		Dropped:    p.dropped.Load(),
	}
}
