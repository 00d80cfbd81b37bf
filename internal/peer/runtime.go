package peer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/danmuck/posecast/internal/observability"
	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/replication"
	"github.com/rs/zerolog/log"
)

type RuntimeConfig struct {
	Client       ClientConfig
	TickInterval time.Duration
	Replication  replication.Config
	// InboundQueue bounds messages read off the wire but not yet applied.
	InboundQueue int
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Client:       DefaultClientConfig(),
		TickInterval: 50 * time.Millisecond,
		Replication:  replication.DefaultConfig(pose.NilActor),
		InboundQueue: 256,
	}
}

// TickFunc runs local simulation on the tick goroutine before the observer polls.
type TickFunc func(tick uint64)

// Runtime drives one peer: a session per successful join and a fresh
// replication.State for each. Every disconnect closes the state, purging all
// replicated poses, before reconnecting.
type Runtime struct {
	cfg     RuntimeConfig
	client  *Client
	world   replication.World
	catalog *pose.Catalog

	onTick       []TickFunc
	onSessionEnd []func(purged int)
	onLeave      []func(actor pose.ActorID)
	subscribers  []replication.Subscriber

	calls     chan func(*replication.State)
	tick      uint64
	connected atomic.Bool
}

func NewRuntime(cfg RuntimeConfig, world replication.World, catalog *pose.Catalog) (*Runtime, error) {
	def := DefaultRuntimeConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.InboundQueue <= 0 {
		cfg.InboundQueue = def.InboundQueue
	}
	cfg.Replication.LocalActor = cfg.Client.ActorID
	client, err := NewClient(cfg.Client)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		cfg:     cfg,
		client:  client,
		world:   world,
		catalog: catalog,
		calls:   make(chan func(*replication.State)),
	}, nil
}

// OnTick registers fn; register before Run.
func (r *Runtime) OnTick(fn TickFunc) {
	r.onTick = append(r.onTick, fn)
}

// OnSessionEnd registers fn to run on the tick goroutine after a session's
// state is closed.
func (r *Runtime) OnSessionEnd(fn func(purged int)) {
	r.onSessionEnd = append(r.onSessionEnd, fn)
}

// OnLeave registers fn to run on the tick goroutine when the relay reports
// that a remote actor left, after its replicated pose is purged.
func (r *Runtime) OnLeave(fn func(actor pose.ActorID)) {
	r.onLeave = append(r.onLeave, fn)
}

// Subscribe attaches fn to the applier of every session state.
func (r *Runtime) Subscribe(fn replication.Subscriber) {
	r.subscribers = append(r.subscribers, fn)
}

func (r *Runtime) Connected() bool { return r.connected.Load() }

// Inspect runs fn on the tick goroutine against the live state.
func (r *Runtime) Inspect(ctx context.Context, fn func(*replication.State)) error {
	done := make(chan struct{})
	call := func(s *replication.State) {
		defer close(done)
		fn(s)
	}
	select {
	case r.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run joins the relay and runs sessions until ctx ends.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		sess, err := r.client.ConnectAndJoin(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err = r.runSession(ctx, sess)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().
			Str("peer_id", r.cfg.Client.PeerID).
			Err(err).
			Msg("peer.Runtime session ended, reconnecting")
	}
}

func (r *Runtime) runSession(ctx context.Context, sess *Session) error {
	state := replication.NewState(r.cfg.Replication, r.world, r.catalog)
	for _, fn := range r.subscribers {
		state.Applier().Subscribe(fn)
	}
	r.connected.Store(true)
	defer func() {
		r.connected.Store(false)
		_ = sess.Close()
		purged := state.Close()
		for _, fn := range r.onSessionEnd {
			fn(purged)
		}
	}()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	inbound := make(chan Inbound, r.cfg.InboundQueue)
	readErr := make(chan error, 1)
	go func() {
		for {
			msg, err := sess.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-sessCtx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(r.cfg.Client.Session.WithDefaults().HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case msg := <-inbound:
			r.receive(state, msg)
		case call := <-r.calls:
			call(state)
		case <-heartbeat.C:
			if err := sess.SendHeartbeat(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := r.step(state, sess); err != nil {
				return err
			}
		}
	}
}

func (r *Runtime) receive(state *replication.State, msg Inbound) {
	switch {
	case msg.Replication != nil:
		state.Receive(*msg.Replication)
	case msg.Leave != nil:
		purged := state.Leave(*msg.Leave)
		log.Debug().
			Str("actor_id", msg.Leave.Actor.String()).
			Str("origin_peer", msg.Leave.OriginPeer).
			Bool("purged", purged).
			Msg("peer.Runtime actor left")
		for _, fn := range r.onLeave {
			fn(msg.Leave.Actor)
		}
	}
}

func (r *Runtime) step(state *replication.State, sess *Session) error {
	r.tick++
	for _, fn := range r.onTick {
		fn(r.tick)
	}
	out, ok := state.Tick()
	if !ok {
		return nil
	}
	if err := sess.Send(out); err != nil {
		log.Warn().Str("peer_id", r.cfg.Client.PeerID).Err(err).Msg("peer.Runtime send failed")
		return err
	}
	observability.RecordPeerSent(r.cfg.Client.PeerID, out.IsStop())
	return nil
}
