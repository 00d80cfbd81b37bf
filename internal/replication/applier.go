package replication

import (
	"github.com/danmuck/posecast/internal/observability"
	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Outcome classifies what Apply did with one message.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeStopped      Outcome = "stopped"
	OutcomeIdle         Outcome = "idle"
	OutcomeIgnoredSelf  Outcome = "ignored_self"
	OutcomeUnknownActor Outcome = "unknown_actor"
)

type ApplierConfig struct {
	// LocalActor is this peer's own actor; messages for it are never applied.
	LocalActor pose.ActorID
	Priority   int
	// PlaceholderTTL is how many ticks an empty placeholder layer survives.
	PlaceholderTTL   uint64
	GenericFallbacks []pose.Identifier
}

func DefaultApplierConfig() ApplierConfig {
	return ApplierConfig{
		Priority:       ReplicatedPriority,
		PlaceholderTTL: 100,
		GenericFallbacks: []pose.Identifier{
			pose.NewIdentifier(pose.DefaultNamespace, "idle"),
			pose.NewIdentifier(pose.DefaultNamespace, "emote/wave"),
		},
	}
}

func (c ApplierConfig) WithDefaults() ApplierConfig {
	d := DefaultApplierConfig()
	if c.Priority == 0 {
		c.Priority = d.Priority
	}
	if c.PlaceholderTTL == 0 {
		c.PlaceholderTTL = d.PlaceholderTTL
	}
	if c.GenericFallbacks == nil {
		c.GenericFallbacks = d.GenericFallbacks
	}
	return c
}

// Record is the applied pose for one remote actor.
type Record struct {
	// ID is the identifier carried on the message.
	ID pose.Identifier
	// Resolved is the identifier whose definition was installed.
	Resolved     pose.Identifier
	Source       Source
	Handle       pose.LayerHandle
	LastProgress uint32
	// ExpiresAt is the tick a placeholder layer is removed; zero otherwise.
	// Replacing or deleting the record cancels it.
	ExpiresAt uint64
}

// Result reports what Apply did.
type Result struct {
	Outcome  Outcome
	Source   Source
	Resolved pose.Identifier
}

// Subscriber observes every decoded inbound message before it is applied.
type Subscriber func(msg session.Replication)

// Applier installs remote actors' replicated poses into local stacks.
type Applier struct {
	cfg     ApplierConfig
	world   World
	catalog *pose.Catalog

	tick        uint64
	records     map[pose.ActorID]*Record
	subscribers []Subscriber
}

func NewApplier(cfg ApplierConfig, world World, catalog *pose.Catalog) *Applier {
	return &Applier{
		cfg:     cfg.WithDefaults(),
		world:   world,
		catalog: catalog,
		records: make(map[pose.ActorID]*Record),
	}
}

// Subscribe registers fn to be called once per message passed to Apply.
func (a *Applier) Subscribe(fn Subscriber) {
	if fn != nil {
		a.subscribers = append(a.subscribers, fn)
	}
}

// OnPoseReplicationReceived notifies subscribers and applies msg.
func (a *Applier) OnPoseReplicationReceived(msg session.Replication) Result {
	return a.Apply(msg)
}

// Apply applies one message in receipt order.
func (a *Applier) Apply(msg session.Replication) Result {
	for _, fn := range a.subscribers {
		fn(msg)
	}
	res := a.apply(msg)
	observability.RecordApplierOutcome(string(res.Outcome))
	return res
}

func (a *Applier) apply(msg session.Replication) Result {
	if msg.Actor == pose.NilActor {
		return Result{Outcome: OutcomeUnknownActor}
	}
	if msg.Actor == a.cfg.LocalActor {
		return Result{Outcome: OutcomeIgnoredSelf}
	}
	if msg.IsStop() {
		if a.remove(msg.Actor) {
			log.Debug().Str("actor_id", msg.Actor.String()).Msg("replication.Applier.Apply stopped")
			return Result{Outcome: OutcomeStopped}
		}
		return Result{Outcome: OutcomeIdle}
	}

	stack, ok := a.stack(msg.Actor)
	if !ok {
		// The actor may not be loaded here yet. Any stale record is dropped
		// so its layer cannot outlive the actor.
		a.remove(msg.Actor)
		log.Debug().Str("actor_id", msg.Actor.String()).Msg("replication.Applier.Apply unknown actor, dropped")
		return Result{Outcome: OutcomeUnknownActor}
	}
	if prev, ok := a.records[msg.Actor]; ok {
		stack.Remove(prev.Handle)
		delete(a.records, msg.Actor)
	}

	res := a.resolve(msg.Actor, msg.Pose)
	observability.RecordApplierResolution(string(res.Source))
	handle := stack.Install(a.cfg.Priority, res.Definition)
	progress := clampProgress(msg.Pose.Progress)
	if res.Definition != nil {
		if setter, ok := stack.(pose.ProgressSetter); ok && progress > 0 {
			setter.SetProgress(handle, progress)
		}
	}

	rec := &Record{
		ID:           msg.Pose.ID,
		Resolved:     res.ID,
		Source:       res.Source,
		Handle:       handle,
		LastProgress: progress,
	}
	if res.Source == SourcePlaceholder {
		rec.ExpiresAt = a.tick + a.cfg.PlaceholderTTL
	}
	a.records[msg.Actor] = rec

	log.Debug().
		Str("actor_id", msg.Actor.String()).
		Str("pose", msg.Pose.ID.String()).
		Str("resolved", res.ID.String()).
		Str("source", string(res.Source)).
		Msg("replication.Applier.Apply installed")
	return Result{Outcome: OutcomeApplied, Source: res.Source, Resolved: res.ID}
}

// Tick advances the applier clock and removes expired placeholder layers.
func (a *Applier) Tick() {
	a.tick++
	for actor, rec := range a.records {
		if rec.ExpiresAt == 0 || a.tick < rec.ExpiresAt {
			continue
		}
		a.remove(actor)
		log.Debug().Str("actor_id", actor.String()).Msg("replication.Applier.Tick placeholder expired")
	}
}

// PurgeActor drops the actor's record and layer; used on despawn or leave.
func (a *Applier) PurgeActor(actor pose.ActorID) bool {
	return a.remove(actor)
}

// PurgeAll drops every record and returns how many were active.
func (a *Applier) PurgeAll() int {
	n := 0
	for actor := range a.records {
		if a.remove(actor) {
			n++
		}
	}
	return n
}

// Record returns a copy of the applied record for actor.
func (a *Applier) Record(actor pose.ActorID) (Record, bool) {
	rec, ok := a.records[actor]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Active is the number of actors with an applied pose.
func (a *Applier) Active() int { return len(a.records) }

func (a *Applier) remove(actor pose.ActorID) bool {
	rec, ok := a.records[actor]
	if !ok {
		return false
	}
	delete(a.records, actor)
	if a.world == nil {
		return true
	}
	if stack, ok := a.world.LoadedStack(actor); ok {
		stack.Remove(rec.Handle)
	}
	return true
}

func (a *Applier) stack(actor pose.ActorID) (pose.Stack, bool) {
	if a.world == nil {
		return nil, false
	}
	return a.world.Stack(actor)
}

func clampProgress(v uint64) uint32 {
	const max = ^uint32(0)
	if v > uint64(max) {
		return max
	}
	return uint32(v)
}
