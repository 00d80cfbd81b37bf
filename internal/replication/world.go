package replication

import "github.com/danmuck/posecast/internal/pose"

// World resolves actors to their local pose-stacks. An actor that is not
// loaded on this peer reports false.
type World interface {
	// Stack resolves actor for an install; a world may load the actor on demand.
	Stack(actor pose.ActorID) (pose.Stack, bool)
	// LoadedStack resolves actor without side effects. Removals use it so a
	// despawned actor is never brought back.
	LoadedStack(actor pose.ActorID) (pose.Stack, bool)
}

// Layer priorities for replicated content.
const (
	// ReplicatedPriority is the dedicated layer priority for replicated poses.
	ReplicatedPriority = 1000
	// OverridePriority is reserved for powerful local effects and always
	// outranks replicated poses.
	OverridePriority = 3000
)
