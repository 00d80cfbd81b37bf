package main

import (
	"github.com/danmuck/posecast/internal/config"
	"github.com/danmuck/posecast/internal/pose"
	"github.com/rs/zerolog/log"
)

// localPriority is where the scripted actor plays its own poses.
const localPriority = 100

// scriptDriver plays the configured poses on the local actor in order, each
// for hold ticks followed by an idle gap, and advances every stack in the
// world once per tick.
type scriptDriver struct {
	world   *pose.MemoryWorld
	actor   pose.ActorID
	catalog *pose.Catalog
	steps   []pose.Identifier
	hold    uint64

	next      int
	handle    pose.LayerHandle
	playing   bool
	remaining uint64
}

func newScriptDriver(world *pose.MemoryWorld, actor pose.ActorID, catalog *pose.Catalog, steps []pose.Identifier, hold uint64) *scriptDriver {
	if hold == 0 {
		hold = 1
	}
	return &scriptDriver{
		world:   world,
		actor:   actor,
		catalog: catalog,
		steps:   steps,
		hold:    hold,
	}
}

func (d *scriptDriver) Tick(tick uint64) {
	d.world.Advance()
	if d.remaining > 0 {
		d.remaining--
		return
	}
	stack := d.world.Spawn(d.actor)
	if d.playing {
		stack.Remove(d.handle)
		d.playing = false
		d.remaining = d.hold / 2
		return
	}
	if len(d.steps) == 0 {
		return
	}
	id := d.steps[d.next%len(d.steps)]
	d.next++
	def, ok := d.catalog.Get(id)
	if !ok {
		log.Warn().Str("pose", id.String()).Msg("peerctl.script unknown pose, skipping")
		return
	}
	d.handle = stack.Install(localPriority, def)
	d.playing = true
	d.remaining = d.hold
	log.Debug().
		Uint64("tick", tick).
		Str("pose", id.String()).
		Msg("peerctl.script playing")
}

// despawnRemoteActors drops every stack except local's and reports how many
// went. Remote actors are only known through the relay, so a lost session
// takes them all.
func despawnRemoteActors(world *pose.MemoryWorld, local pose.ActorID) int {
	n := 0
	for _, actor := range world.Actors() {
		if actor == local {
			continue
		}
		world.Despawn(actor)
		n++
	}
	return n
}

// builtinCatalog backs the demo when no catalog_path is configured.
func builtinCatalog() (config.LoadedCatalog, error) {
	return config.BuildCatalog(config.CatalogFile{
		GenericFallbacks: []string{"core:idle", "core:emote/wave"},
		Poses: []config.PoseEntry{
			{
				ID:     "core:idle",
				Name:   "Idle",
				Length: 80,
				Loop:   true,
				Keyframes: []pose.Keyframe{
					{Tick: 0, Bone: "body", Rotation: [3]float64{0, 0, 0}},
					{Tick: 40, Bone: "body", Rotation: [3]float64{2, 0, 0}},
				},
			},
			{
				ID:     "core:emote/wave",
				Name:   "Wave",
				Length: 30,
				Keyframes: []pose.Keyframe{
					{Tick: 0, Bone: "right_arm", Rotation: [3]float64{0, 0, 0}},
					{Tick: 15, Bone: "right_arm", Rotation: [3]float64{-150, 0, 20}},
					{Tick: 30, Bone: "right_arm", Rotation: [3]float64{0, 0, 0}},
				},
			},
		},
	})
}
