package pose

import (
	"errors"
	"fmt"
	"sort"
)

// maxUnwrapDepth bounds wrapper recursion so a cyclic wrapper cannot hang a poll.
const maxUnwrapDepth = 16

var ErrIntrospection = errors.New("pose: pose-stack introspection failed")

// LayerHandle identifies one installed layer within a single actor's stack.
type LayerHandle uint64

// Player is the content of a pose-stack layer.
type Player interface {
	Active() bool
}

// Unwrappable is implemented by every wrapper/modifier player.
type Unwrappable interface {
	Player
	Inner() Player
}

// Playable is a concrete clip with retrievable identifier and progress.
type Playable interface {
	Player
	// Identifier reports the explicit identifier attached to the pose data, if any.
	Identifier() (Identifier, bool)
	Progress() uint32
	Length() uint32
	Looping() bool
	// Definition may return nil when the clip was built without authored data.
	Definition() *Definition
}

// Layer is one priority-ranked entry of a pose-stack.
type Layer struct {
	Handle   LayerHandle
	Priority int
	Player   Player
}

// Stack is one actor's local pose-stack as exposed by the rendering layer.
type Stack interface {
	Layers() []Layer
	// Install adds a layer; a nil definition installs an empty placeholder layer.
	Install(priority int, def *Definition) LayerHandle
	Remove(h LayerHandle)
}

// ProgressSetter is optionally implemented by stacks that can start an installed
// layer part-way through its definition.
type ProgressSetter interface {
	SetProgress(h LayerHandle, progress uint32)
}

// Snapshot is the read-only view of an actor's active pose.
type Snapshot struct {
	Handle     LayerHandle
	ID         Identifier
	HasID      bool
	Progress   uint32
	Length     uint32
	Loop       bool
	Definition *Definition
}

// ActivePoseOf finds the highest-priority active layer and unwraps it to a
// concrete Playable. A panic raised by a collaborator's player is recovered
// and reported as ErrIntrospection.
func ActivePoseOf(stack Stack) (snap Snapshot, ok bool, err error) {
	if stack == nil {
		return Snapshot{}, false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			snap, ok = Snapshot{}, false
			err = fmt.Errorf("%w: %v", ErrIntrospection, r)
		}
	}()

	layers := stack.Layers()
	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].Priority > layers[j].Priority
	})
	for _, layer := range layers {
		if layer.Player == nil || !layer.Player.Active() {
			continue
		}
		// The top active layer owns what is visible. If it cannot be unwrapped
		// the actor shows nothing we can name, so lower layers are not reported.
		playable, found := Unwrap(layer.Player)
		if !found {
			return Snapshot{}, false, nil
		}
		id, hasID := playable.Identifier()
		return Snapshot{
			Handle:     layer.Handle,
			ID:         id,
			HasID:      hasID && !id.IsZero(),
			Progress:   playable.Progress(),
			Length:     playable.Length(),
			Loop:       playable.Looping(),
			Definition: playable.Definition(),
		}, true, nil
	}
	return Snapshot{}, false, nil
}

// Unwrap descends through wrapper players until a Playable is reached.
func Unwrap(p Player) (Playable, bool) {
	for depth := 0; p != nil && depth <= maxUnwrapDepth; depth++ {
		if playable, ok := p.(Playable); ok {
			return playable, true
		}
		wrapper, ok := p.(Unwrappable)
		if !ok {
			return nil, false
		}
		p = wrapper.Inner()
	}
	return nil, false
}
