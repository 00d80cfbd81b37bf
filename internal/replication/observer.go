package replication

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// GeneratedNamespace holds identifiers synthesized for poses that carry none.
const GeneratedNamespace = "generated"

type ObserverConfig struct {
	// PollEvery is the polling cadence in ticks.
	PollEvery uint64
	// DriftThreshold is the progress drift, in ticks, tolerated before a
	// re-report of an unchanged pose.
	DriftThreshold uint32
	// Now supplies placeholder identifiers; defaults to time.Now.
	Now func() time.Time
}

func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		PollEvery:      2,
		DriftThreshold: 3,
	}
}

func (c ObserverConfig) WithDefaults() ObserverConfig {
	d := DefaultObserverConfig()
	if c.PollEvery == 0 {
		c.PollEvery = d.PollEvery
	}
	if c.DriftThreshold == 0 {
		c.DriftThreshold = d.DriftThreshold
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Observation is the last state reported for the observed actor.
type Observation struct {
	ID       pose.Identifier
	Progress uint32
	Active   bool
}

type placeholderID struct {
	handle pose.LayerHandle
	def    *pose.Definition
	id     pose.Identifier
}

// Observer watches one locally controlled actor.
type Observer struct {
	cfg   ObserverConfig
	actor pose.ActorID
	world World

	tick        uint64
	record      *Observation
	placeholder *placeholderID
}

func NewObserver(cfg ObserverConfig, actor pose.ActorID, world World) *Observer {
	return &Observer{
		cfg:   cfg.WithDefaults(),
		actor: actor,
		world: world,
	}
}

func (o *Observer) Actor() pose.ActorID { return o.actor }

// Observation returns the current record, if one exists.
func (o *Observer) Observation() (Observation, bool) {
	if o.record == nil {
		return Observation{}, false
	}
	return *o.record, true
}

// Tick advances the observer one tick and polls on the configured cadence.
func (o *Observer) Tick() (session.Replication, bool) {
	o.tick++
	if o.tick%o.cfg.PollEvery != 0 {
		return session.Replication{}, false
	}
	return o.Poll()
}

// Poll inspects the actor's pose-stack and returns a message when the
// visible state changed enough to report.
func (o *Observer) Poll() (session.Replication, bool) {
	snap, ok := o.inspect()
	if !ok {
		o.placeholder = nil
		if o.record != nil && o.record.Active {
			o.record = nil
			log.Debug().
				Str("actor_id", o.actor.String()).
				Msg("replication.Observer.Poll pose ended, emitting stop")
			return session.StopFor(o.actor), true
		}
		o.record = nil
		return session.Replication{}, false
	}

	id := o.identify(snap)
	if o.record != nil && o.record.Active && o.record.ID == id &&
		drift(o.record.Progress, snap.Progress) <= o.cfg.DriftThreshold {
		return session.Replication{}, false
	}

	o.record = &Observation{ID: id, Progress: snap.Progress, Active: true}
	state := &session.PoseState{
		ID:       id,
		Progress: uint64(snap.Progress),
		Length:   uint64(snap.Length),
		Loop:     snap.Loop,
		Inline:   o.inline(snap.Definition),
	}
	return session.Replication{Actor: o.actor, Pose: state}, true
}

func (o *Observer) inspect() (pose.Snapshot, bool) {
	if o.world == nil {
		return pose.Snapshot{}, false
	}
	stack, ok := o.world.Stack(o.actor)
	if !ok {
		return pose.Snapshot{}, false
	}
	snap, ok, err := pose.ActivePoseOf(stack)
	if err != nil {
		log.Warn().
			Str("actor_id", o.actor.String()).
			Err(err).
			Msg("replication.Observer.inspect failed, treating as no active pose")
		return pose.Snapshot{}, false
	}
	return snap, ok
}

// identify prefers an explicit identifier, then the definition's own
// metadata, then a time-based placeholder that is stable for as long as the
// same layer keeps playing the same definition.
func (o *Observer) identify(snap pose.Snapshot) pose.Identifier {
	if snap.HasID {
		o.placeholder = nil
		return snap.ID
	}
	if def := snap.Definition; def != nil {
		if !def.ID.IsZero() {
			o.placeholder = nil
			return def.ID
		}
		if name := sanitizeName(def.Name); name != "" {
			o.placeholder = nil
			return pose.NewIdentifier(GeneratedNamespace, name)
		}
	}
	if p := o.placeholder; p != nil && p.handle == snap.Handle && p.def == snap.Definition {
		return p.id
	}
	id := pose.NewIdentifier(GeneratedNamespace, fmt.Sprintf("pose_%d", o.cfg.Now().UnixMilli()))
	o.placeholder = &placeholderID{handle: snap.Handle, def: snap.Definition, id: id}
	return id
}

func (o *Observer) inline(def *pose.Definition) []byte {
	if def == nil {
		return nil
	}
	blob, err := pose.EncodeBlob(def)
	if err != nil {
		log.Warn().
			Str("actor_id", o.actor.String()).
			Err(err).
			Msg("replication.Observer.inline encode failed, sending without definition")
		return nil
	}
	return blob
}

func drift(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '/', r == '.', r == '-':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
}
