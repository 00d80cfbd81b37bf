package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/schema"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrRelayAddressRequired = errors.New("peer: relay address required")
	ErrPeerIDRequired       = errors.New("peer: peer_id required")
	ErrActorRequired        = errors.New("peer: actor_id required")
	ErrJoinRejected         = errors.New("peer: join rejected")
	ErrSessionClosed        = errors.New("peer: relay session closed")
)

type ClientConfig struct {
	// Address is host:port for TCP or a ws:// URL for the WebSocket transport.
	Address string
	PeerID  string
	ActorID pose.ActorID
	// Token is presented in the join when the relay requires one.
	Token              string
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address: "127.0.0.1:9400",
		Session: session.DefaultConfig(),
	}
}

type Client struct {
	cfg ClientConfig
	rng *rand.Rand
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrRelayAddressRequired
	}
	if strings.TrimSpace(cfg.PeerID) == "" {
		return nil, ErrPeerIDRequired
	}
	if cfg.ActorID == pose.NilActor {
		return nil, ErrActorRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *Client) Config() ClientConfig { return c.cfg }

// ConnectAndJoin dials the relay, performs the join handshake and returns a
// live session. Dial and transient handshake failures retry with backoff; a
// rejected join does not.
func (c *Client) ConnectAndJoin(ctx context.Context) (*Session, error) {
	var attempt int
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			log.Warn().
				Int("attempt", attempt).
				Str("addr", c.cfg.Address).
				Err(err).
				Msg("peer.Client dial failed")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !c.shouldRetry(attempt) {
				return nil, err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		sess, err := c.join(conn)
		if err == nil {
			return sess, nil
		}
		_ = conn.Close()
		if errors.Is(err, ErrJoinRejected) || !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if session.IsWebSocketAddress(c.cfg.Address) {
		return session.DialWebSocket(ctx, c.cfg.Address, c.cfg.Session.ConnectTimeout)
	}
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", c.cfg.Address)
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) join(conn net.Conn) (*Session, error) {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	join := session.Join{PeerID: c.cfg.PeerID, ActorID: c.cfg.ActorID, Token: c.cfg.Token}
	if err := session.WriteJoin(conn, join); err != nil {
		return nil, err
	}
	ack, err := session.ReadJoinAck(reader)
	if err != nil {
		return nil, err
	}
	if ack.Status != session.AckStatusAccepted {
		return nil, fmt.Errorf("%w: code=%d message=%q", ErrJoinRejected, ack.Code, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	s := &Session{
		conn:    conn,
		reader:  reader,
		cfg:     c.cfg.Session,
		peerID:  c.cfg.PeerID,
		relayID: ack.RelayID,
	}
	s.nextMessageID.Store(uint64(time.Now().UnixNano()))
	log.Info().
		Str("peer_id", c.cfg.PeerID).
		Str("relay_id", ack.RelayID).
		Str("addr", c.cfg.Address).
		Msg("peer.Client joined")
	return s, nil
}

// Inbound is one message read from the relay. Exactly one field is set.
type Inbound struct {
	Replication *session.Replication
	Leave       *session.Leave
}

// Session is one joined relay connection.
type Session struct {
	conn          net.Conn
	reader        *bufio.Reader
	cfg           session.Config
	peerID        string
	relayID       string
	nextMessageID atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func (s *Session) RelayID() string { return s.relayID }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Send writes one replication message. There is no ack; delivery is best effort.
func (s *Session) Send(rep session.Replication) error {
	payload, err := session.EncodeReplicationFrame(s.nextMessageID.Add(1), 0, rep)
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *Session) SendHeartbeat() error {
	payload, err := session.EncodeHeartbeatFrame(s.nextMessageID.Add(1))
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *Session) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_, err := s.conn.Write(payload)
	return err
}

// ReadMessage blocks for the next replication or leave message. Frames that
// fail to decode are logged and skipped.
func (s *Session) ReadMessage() (Inbound, error) {
	for {
		fr, err := session.ReadFrame(s.reader)
		if err != nil {
			return Inbound{}, err
		}
		switch fr.Header.MessageType {
		case schema.MsgPoseReplicate:
			rep, err := session.DecodeReplicationFrame(fr)
			if err != nil {
				log.Debug().Str("peer_id", s.peerID).Err(err).Msg("peer.Session.ReadMessage undecodable pose.replicate")
				continue
			}
			return Inbound{Replication: &rep}, nil
		case schema.MsgActorLeave:
			leave, err := session.DecodeLeaveFrame(fr)
			if err != nil {
				log.Debug().Str("peer_id", s.peerID).Err(err).Msg("peer.Session.ReadMessage undecodable actor.leave")
				continue
			}
			return Inbound{Leave: &leave}, nil
		default:
			continue
		}
	}
}
