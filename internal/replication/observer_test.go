package replication

import (
	"testing"
	"time"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/testutil/testlog"
)

func newObserverFixture(t *testing.T) (*Observer, *pose.MemoryStack, pose.ActorID) {
	t.Helper()
	world := pose.NewMemoryWorld()
	actor := pose.NewActorID()
	stack := world.Spawn(actor)
	return NewObserver(DefaultObserverConfig(), actor, world), stack, actor
}

func swingDef() *pose.Definition {
	return &pose.Definition{ID: pose.MustIdentifier("core:swing"), Length: 40}
}

func TestObserverUnchangingPoseEmitsOnce(t *testing.T) {
	testlog.Start(t)
	obs, stack, actor := newObserverFixture(t)
	clip := pose.NewClip(swingDef())
	clip.Pause()
	stack.Play(ReplicatedPriority, clip)

	emitted := 0
	for i := 0; i < 200; i++ {
		msg, ok := obs.Tick()
		if !ok {
			continue
		}
		emitted++
		if msg.Actor != actor || msg.IsStop() {
			t.Fatalf("unexpected message: %+v", msg)
		}
	}
	if emitted != 1 {
		t.Fatalf("expected exactly one message for a frozen pose, got %d", emitted)
	}
}

func TestObserverPollsEveryOtherTick(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	stack.Install(ReplicatedPriority, swingDef())

	if _, ok := obs.Tick(); ok {
		t.Fatalf("first tick should not poll")
	}
	if _, ok := obs.Tick(); !ok {
		t.Fatalf("second tick should poll and report")
	}
}

func TestObserverReportsOnlyBeyondDriftThreshold(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	stack.Install(ReplicatedPriority, swingDef())

	var progresses []uint64
	for i := 0; i <= 8; i++ {
		if msg, ok := obs.Poll(); ok {
			progresses = append(progresses, msg.Pose.Progress)
		}
		stack.Advance()
	}
	want := []uint64{0, 4, 8}
	if len(progresses) != len(want) {
		t.Fatalf("got progresses=%v want=%v", progresses, want)
	}
	for i := range want {
		if progresses[i] != want[i] {
			t.Fatalf("got progresses=%v want=%v", progresses, want)
		}
	}
}

func TestObserverIdentifierChangeEmits(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	h := stack.Install(ReplicatedPriority, swingDef())
	if _, ok := obs.Poll(); !ok {
		t.Fatalf("expected initial report")
	}
	stack.Remove(h)
	stack.Install(ReplicatedPriority, &pose.Definition{ID: pose.MustIdentifier("core:block"), Length: 10})
	msg, ok := obs.Poll()
	if !ok || msg.Pose.ID.Path != "block" {
		t.Fatalf("expected report for new pose, got ok=%v msg=%+v", ok, msg)
	}
}

func TestObserverEmitsStopOnceWhenPoseEnds(t *testing.T) {
	testlog.Start(t)
	obs, stack, actor := newObserverFixture(t)
	h := stack.Install(ReplicatedPriority, swingDef())
	if _, ok := obs.Poll(); !ok {
		t.Fatalf("expected initial report")
	}
	stack.Remove(h)

	msg, ok := obs.Poll()
	if !ok || !msg.IsStop() || msg.Actor != actor {
		t.Fatalf("expected stop, got ok=%v msg=%+v", ok, msg)
	}
	if _, ok := obs.Observation(); ok {
		t.Fatalf("observation should be cleared after stop")
	}
	if _, ok := obs.Poll(); ok {
		t.Fatalf("stop must not repeat")
	}
}

func TestObserverNoPoseNeverEmits(t *testing.T) {
	testlog.Start(t)
	obs, _, _ := newObserverFixture(t)
	for i := 0; i < 10; i++ {
		if _, ok := obs.Tick(); ok {
			t.Fatalf("idle actor should not emit")
		}
	}
}

func TestObserverUnwrapsNestedModifiers(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	clip := pose.NewClip(swingDef())
	clip.Seek(5)
	inner := &pose.Modifier{Wrapped: clip, Speed: 2}
	stack.Play(ReplicatedPriority, &pose.Modifier{Wrapped: inner})

	msg, ok := obs.Poll()
	if !ok {
		t.Fatalf("expected report through wrappers")
	}
	if msg.Pose.ID != swingDef().ID || msg.Pose.Progress != 5 || msg.Pose.Length != 40 {
		t.Fatalf("unexpected pose state: %+v", msg.Pose)
	}
}

type panickingPlayer struct{}

func (panickingPlayer) Active() bool { panic("corrupt player") }

func TestObserverIntrospectionFailureIsNoPose(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	h := stack.Install(ReplicatedPriority, swingDef())
	if _, ok := obs.Poll(); !ok {
		t.Fatalf("expected initial report")
	}
	stack.Remove(h)
	stack.Play(ReplicatedPriority, panickingPlayer{})

	msg, ok := obs.Poll()
	if !ok || !msg.IsStop() {
		t.Fatalf("failed introspection should read as no pose and stop, got ok=%v msg=%+v", ok, msg)
	}
	if _, ok := obs.Poll(); ok {
		t.Fatalf("repeated failure should stay silent")
	}
}

func TestObserverSynthesizesIdentifierFromName(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	stack.Install(ReplicatedPriority, &pose.Definition{Name: "Big Swing!", Length: 10})

	msg, ok := obs.Poll()
	if !ok {
		t.Fatalf("expected report")
	}
	want := pose.NewIdentifier(GeneratedNamespace, "big_swing")
	if msg.Pose.ID != want {
		t.Fatalf("id got=%s want=%s", msg.Pose.ID, want)
	}
}

func TestObserverPlaceholderIdentifierIsStablePerLayer(t *testing.T) {
	testlog.Start(t)
	world := pose.NewMemoryWorld()
	actor := pose.NewActorID()
	stack := world.Spawn(actor)
	clock := time.UnixMilli(1000)
	cfg := DefaultObserverConfig()
	cfg.Now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	obs := NewObserver(cfg, actor, world)

	h := stack.Install(ReplicatedPriority, &pose.Definition{Length: 50})
	first, ok := obs.Poll()
	if !ok {
		t.Fatalf("expected report")
	}
	if first.Pose.ID.Namespace != GeneratedNamespace {
		t.Fatalf("expected generated namespace, got %s", first.Pose.ID)
	}
	for i := 0; i < 4; i++ {
		stack.Advance()
	}
	second, ok := obs.Poll()
	if !ok {
		t.Fatalf("expected drift report")
	}
	if second.Pose.ID != first.Pose.ID {
		t.Fatalf("placeholder id changed while layer kept playing: %s -> %s", first.Pose.ID, second.Pose.ID)
	}

	stack.Remove(h)
	stack.Install(ReplicatedPriority, &pose.Definition{Length: 50})
	third, ok := obs.Poll()
	if !ok || third.Pose.ID == first.Pose.ID {
		t.Fatalf("new layer should get a new placeholder id, got ok=%v id=%s", ok, third.Pose.ID)
	}
}

func TestObserverIncludesInlineDefinition(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	def := &pose.Definition{
		ID:     pose.MustIdentifier("core:swing"),
		Length: 40,
		Keyframes: []pose.Keyframe{
			{Tick: 0, Bone: "arm_r", Rotation: [3]float64{0, 0, 0}},
			{Tick: 20, Bone: "arm_r", Rotation: [3]float64{90, 0, 0}},
		},
	}
	stack.Install(ReplicatedPriority, def)

	msg, ok := obs.Poll()
	if !ok {
		t.Fatalf("expected report")
	}
	got, err := pose.DecodeBlob(msg.Pose.Inline)
	if err != nil {
		t.Fatalf("decode inline: %v", err)
	}
	if got.ID != def.ID || len(got.Keyframes) != 2 || got.Keyframes[1].Rotation[0] != 90 {
		t.Fatalf("inline definition mismatch: %+v", got)
	}
}

func TestObserverHighestPriorityWins(t *testing.T) {
	testlog.Start(t)
	obs, stack, _ := newObserverFixture(t)
	stack.Install(ReplicatedPriority, swingDef())
	stack.Install(OverridePriority, &pose.Definition{ID: pose.MustIdentifier("core:stun"), Length: 5})

	msg, ok := obs.Poll()
	if !ok || msg.Pose.ID.Path != "stun" {
		t.Fatalf("expected override layer to be reported, got %+v", msg)
	}
}
