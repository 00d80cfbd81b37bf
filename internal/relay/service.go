package relay

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/posecast/internal/auth"
	"github.com/danmuck/posecast/internal/observability"
	"github.com/danmuck/posecast/internal/protocol/frame"
	"github.com/danmuck/posecast/internal/protocol/schema"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// ServiceConfig configures the relay listeners and per-peer queues.
type ServiceConfig struct {
	RelayID    string
	ListenAddr string
	// AdminListenAddr serves health, peers, metrics and the WebSocket
	// transport. Empty disables it.
	AdminListenAddr string
	QueueDepth      int
	Session         session.Config
	// Auth checks the join token; nil admits every peer.
	Auth auth.Validator
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RelayID:         "relay.local",
		ListenAddr:      ":9400",
		AdminListenAddr: ":9401",
		QueueDepth:      256,
		Session:         session.DefaultConfig(),
	}
}

// Service is the relay runtime.
type Service struct {
	cfg ServiceConfig
	hub *Hub

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	nextMessageID atomic.Uint64
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.RelayID) == "" {
		cfg.RelayID = def.RelayID
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg:   cfg,
		hub:   NewHub(),
		conns: make(map[net.Conn]struct{}),
	}
}

func (s *Service) Config() ServiceConfig { return s.cfg }

func (s *Service) Hub() *Hub { return s.hub }

// Run listens on the configured addresses and blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().
		Str("relay_id", s.cfg.RelayID).
		Str("addr", ln.Addr().String()).
		Msg("relay.Service.Run listening")

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		adminLn, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			return err
		}
		log.Info().Str("addr", adminLn.Addr().String()).Msg("relay.Service.Run admin listening")
		go func() {
			adminErr <- s.ServeAdmin(ctx, adminLn)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

// Serve is the TCP accept loop on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(conn, TransportTCP)
	}
}

// ServeAdmin serves the admin router until ctx ends.
func (s *Service) ServeAdmin(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeAllConns()
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleConn runs one peer session: join, then the inbound frame loop.
func (s *Service) handleConn(conn net.Conn, transport string) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)

	p, ok := s.acceptJoin(conn, reader, transport)
	if !ok {
		return
	}
	peers := s.hub.Len()
	observability.SetRelayPeers(s.cfg.RelayID, peers)
	log.Info().
		Str("peer_id", p.peerID).
		Str("actor_id", p.actor.String()).
		Str("remote", remote).
		Str("transport", transport).
		Int("peers", peers).
		Msg("relay.handleConn joined")

	// The handshake deadline is cleared before writeLoop owns the write side.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("relay.handleConn clear deadline")
	}
	go p.writeLoop(s.cfg.Session.WriteTimeout)
	defer s.teardown(p)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.SessionDeadAfter))
		fr, err := session.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debug().Str("peer_id", p.peerID).Err(err).Msg("relay.handleConn read ended")
			}
			return
		}
		p.framesIn.Add(1)
		observability.RecordRelayFrame(s.cfg.RelayID, fr.Header.MessageType)
		s.dispatch(p, fr)
	}
}

func (s *Service) acceptJoin(conn net.Conn, reader *bufio.Reader, transport string) (*peerConn, bool) {
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Session.HandshakeTimeout))
	join, err := session.ReadJoin(reader)
	if err != nil {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("relay.acceptJoin invalid join")
		s.writeAck(conn, join.PeerID, session.CodeInvalidJoin, err.Error())
		return nil, false
	}
	if err := auth.Check(s.cfg.Auth, join.Token); err != nil {
		log.Warn().
			Str("peer_id", join.PeerID).
			Str("remote", conn.RemoteAddr().String()).
			Msg("relay.acceptJoin unauthorized")
		s.writeAck(conn, join.PeerID, session.CodeUnauthorized, err.Error())
		return nil, false
	}
	p := newPeerConn(join.PeerID, join.ActorID, conn, transport, s.cfg.QueueDepth)
	if err := s.hub.join(p); err != nil {
		code := session.CodeActorAlreadyBound
		if errors.Is(err, ErrPeerAlreadyBound) {
			code = session.CodePeerAlreadyBound
		}
		log.Warn().
			Str("peer_id", join.PeerID).
			Str("actor_id", join.ActorID.String()).
			Err(err).
			Msg("relay.acceptJoin rejected")
		s.writeAck(conn, join.PeerID, code, err.Error())
		return nil, false
	}
	if !s.writeAck(conn, join.PeerID, session.CodeOK, "") {
		s.hub.leave(p)
		return nil, false
	}
	return p, true
}

func (s *Service) writeAck(conn net.Conn, peerID string, code uint32, message string) bool {
	if strings.TrimSpace(peerID) == "" {
		peerID = "unknown"
	}
	status := session.AckStatusAccepted
	if code != session.CodeOK {
		status = session.AckStatusRejected
	}
	ack := session.JoinAck{
		Status:      status,
		Code:        code,
		Message:     message,
		PeerID:      peerID,
		RelayID:     s.cfg.RelayID,
		TimestampMS: uint64(time.Now().UnixMilli()),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
	if err := session.WriteJoinAck(conn, ack); err != nil {
		log.Debug().Str("peer_id", peerID).Err(err).Msg("relay.writeAck failed")
		return false
	}
	return status == session.AckStatusAccepted
}

// dispatch handles one inbound frame. Bad frames are dropped, never fatal.
func (s *Service) dispatch(p *peerConn, fr frame.Frame) {
	switch fr.Header.MessageType {
	case schema.MsgHeartbeat:
		return
	case schema.MsgPoseReplicate:
		rep, err := session.DecodeReplicationFrame(fr)
		if err != nil {
			log.Warn().Str("peer_id", p.peerID).Err(err).Msg("relay.dispatch undecodable pose.replicate dropped")
			return
		}
		if rep.Actor != p.actor {
			log.Warn().
				Str("peer_id", p.peerID).
				Str("actor_id", rep.Actor.String()).
				Msg("relay.dispatch actor not bound to sender, dropped")
			return
		}
		rep.OriginPeer = p.peerID
		payload, err := session.EncodeReplicationFrame(s.nextMessageID.Add(1), frame.FlagRelayed, rep)
		if err != nil {
			log.Warn().Str("peer_id", p.peerID).Err(err).Msg("relay.dispatch re-encode failed")
			return
		}
		s.fanOut(p, payload)
	default:
		log.Debug().
			Str("peer_id", p.peerID).
			Uint32("message_type", fr.Header.MessageType).
			Msg("relay.dispatch unexpected message_type dropped")
	}
}

func (s *Service) fanOut(from *peerConn, payload []byte) {
	queued, dropped := s.hub.broadcast(from, payload)
	for i := 0; i < queued; i++ {
		observability.RecordRelayDelivery(s.cfg.RelayID, true)
	}
	for i := 0; i < dropped; i++ {
		observability.RecordRelayDelivery(s.cfg.RelayID, false)
	}
}

// teardown tells the others p's actor left, unbinds p and flushes its queue.
// The leave is queued in the same step as the unbind, so it always precedes
// frames from a connection that rebinds the same actor.
func (s *Service) teardown(p *peerConn) {
	payload, err := session.EncodeLeaveFrame(s.nextMessageID.Add(1), session.Leave{Actor: p.actor, OriginPeer: p.peerID})
	if err != nil {
		log.Warn().Str("peer_id", p.peerID).Err(err).Msg("relay.teardown encode actor.leave")
		payload = nil
	}
	bound, queued, dropped := s.hub.depart(p, payload)
	for i := 0; i < queued; i++ {
		observability.RecordRelayDelivery(s.cfg.RelayID, true)
	}
	for i := 0; i < dropped; i++ {
		observability.RecordRelayDelivery(s.cfg.RelayID, false)
	}
	p.close()
	<-p.done
	observability.SetRelayPeers(s.cfg.RelayID, s.hub.Len())
	if !bound {
		return
	}
	log.Info().
		Str("peer_id", p.peerID).
		Str("actor_id", p.actor.String()).
		Msg("relay.teardown left")
}

// Peers lists joined peers for the admin surface.
func (s *Service) Peers() []PeerInfo {
	return s.hub.Snapshot()
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
