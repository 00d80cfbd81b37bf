package replication

import (
	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Config assembles one peer's replication state.
type Config struct {
	LocalActor pose.ActorID
	Observer   ObserverConfig
	Applier    ApplierConfig
}

func DefaultConfig(local pose.ActorID) Config {
	applier := DefaultApplierConfig()
	applier.LocalActor = local
	return Config{
		LocalActor: local,
		Observer:   DefaultObserverConfig(),
		Applier:    applier,
	}
}

// State is the replication state owned by one joined session. It is built
// on join and closed on disconnect; closing purges every applied record.
type State struct {
	observer *Observer
	applier  *Applier
	closed   bool
}

func NewState(cfg Config, world World, catalog *pose.Catalog) *State {
	applierCfg := cfg.Applier
	applierCfg.LocalActor = cfg.LocalActor
	return &State{
		observer: NewObserver(cfg.Observer, cfg.LocalActor, world),
		applier:  NewApplier(applierCfg, world, catalog),
	}
}

func (s *State) Observer() *Observer { return s.observer }

func (s *State) Applier() *Applier { return s.applier }

// Tick runs one simulation step and returns the local actor's outbound
// message, if any.
func (s *State) Tick() (session.Replication, bool) {
	if s.closed {
		return session.Replication{}, false
	}
	s.applier.Tick()
	return s.observer.Tick()
}

// Receive applies an inbound replication message.
func (s *State) Receive(msg session.Replication) Result {
	if s.closed {
		return Result{Outcome: OutcomeIdle}
	}
	return s.applier.Apply(msg)
}

// Leave purges the actor named by an actor.leave message.
func (s *State) Leave(leave session.Leave) bool {
	if s.closed {
		return false
	}
	return s.applier.PurgeActor(leave.Actor)
}

// Close purges all applied records. It is safe to call more than once.
func (s *State) Close() int {
	if s.closed {
		return 0
	}
	s.closed = true
	n := s.applier.PurgeAll()
	log.Debug().Int("purged", n).Msg("replication.State.Close")
	return n
}

func (s *State) Closed() bool { return s.closed }
