package pose

import (
	"errors"
	"testing"

	"github.com/danmuck/posecast/internal/testutil/testlog"
)

func TestParseIdentifier(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		raw  string
		want Identifier
	}{
		{"ns:sword_to_left", Identifier{Namespace: "ns", Path: "sword_to_left"}},
		{"wave", Identifier{Namespace: DefaultNamespace, Path: "wave"}},
		{" core : animations/kick ", Identifier{Namespace: "core", Path: "animations/kick"}},
	}
	for _, tc := range cases {
		got, err := ParseIdentifier(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q got=%+v want=%+v", tc.raw, got, tc.want)
		}
	}
	for _, bad := range []string{"", "ns:", ":path"} {
		if _, err := ParseIdentifier(bad); !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("parse %q expected ErrInvalidIdentifier, got %v", bad, err)
		}
	}
}

func TestIdentifierEqualityIsExact(t *testing.T) {
	testlog.Start(t)
	a := MustIdentifier("core:wave")
	if a != NewIdentifier("core", "wave") {
		t.Fatalf("identical components must be equal")
	}
	if a == NewIdentifier("Core", "wave") || a == NewIdentifier("core", "Wave") {
		t.Fatalf("identifiers must compare exactly")
	}
	if a.String() != "core:wave" || (Identifier{}).String() != "" {
		t.Fatalf("unexpected String output")
	}
}

func TestBlobRoundTrip(t *testing.T) {
	testlog.Start(t)
	def := &Definition{
		ID:     MustIdentifier("core:swing"),
		Name:   "swing",
		Length: 24,
		Loop:   true,
		Keyframes: []Keyframe{
			{Tick: 0, Bone: "arm_r", Rotation: [3]float64{0, 10, 0}},
			{Tick: 12, Bone: "arm_r", Rotation: [3]float64{45, 10, 0}, Easing: "ease_out"},
		},
	}
	blob, err := EncodeBlob(def)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := EncodeBlob(def)
	if err != nil || string(again) != string(blob) {
		t.Fatalf("encoding should be deterministic")
	}
	got, err := DecodeBlob(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != def.ID || got.Length != 24 || !got.Loop || len(got.Keyframes) != 2 {
		t.Fatalf("decoded mismatch: %+v", got)
	}
	if got.Keyframes[1].Easing != "ease_out" || got.Keyframes[1].Rotation[0] != 45 {
		t.Fatalf("keyframe mismatch: %+v", got.Keyframes[1])
	}
}

func TestDecodeBlobRejectsOversizeAndGarbage(t *testing.T) {
	testlog.Start(t)
	if def, err := DecodeBlob(nil); def != nil || err != nil {
		t.Fatalf("empty blob should be (nil, nil)")
	}
	if _, err := DecodeBlob(make([]byte, MaxBlobBytes+1)); !errors.Is(err, ErrBlobTooLarge) {
		t.Fatalf("expected ErrBlobTooLarge, got %v", err)
	}
	if _, err := DecodeBlob([]byte{0xff}); err == nil {
		t.Fatalf("expected decode error for garbage")
	}
}

type boomPlayer struct{}

func (boomPlayer) Active() bool { panic("boom") }

type opaqueWrapper struct{}

func (w opaqueWrapper) Active() bool { return true }

type cyclicWrapper struct{ self *cyclicWrapper }

func (c *cyclicWrapper) Active() bool  { return true }
func (c *cyclicWrapper) Inner() Player { return c.self }

func TestActivePoseOfPicksHighestActiveLayer(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStack()
	low := &Definition{ID: MustIdentifier("core:low"), Length: 10}
	high := &Definition{ID: MustIdentifier("core:high"), Length: 10}
	finished := NewClip(&Definition{ID: MustIdentifier("core:done"), Length: 1})
	finished.Advance()

	s.Install(10, low)
	s.Play(50, finished)
	h := s.Install(20, high)

	snap, ok, err := ActivePoseOf(s)
	if err != nil || !ok {
		t.Fatalf("expected active pose, ok=%v err=%v", ok, err)
	}
	if snap.ID != high.ID || snap.Handle != h || !snap.HasID {
		t.Fatalf("expected high layer, got %+v", snap)
	}
}

func TestActivePoseOfUnwrapBoundaries(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStack()
	s.Play(10, opaqueWrapper{})
	if _, ok, err := ActivePoseOf(s); ok || err != nil {
		t.Fatalf("opaque wrapper should yield no pose, ok=%v err=%v", ok, err)
	}

	c := &cyclicWrapper{}
	c.self = c
	s = NewMemoryStack()
	s.Play(10, c)
	if _, ok, err := ActivePoseOf(s); ok || err != nil {
		t.Fatalf("cyclic wrapper should exhaust, ok=%v err=%v", ok, err)
	}
}

func TestActivePoseOfOpaqueTopLayerHidesLowerLayers(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStack()
	s.Install(5, &Definition{ID: MustIdentifier("core:idle"), Length: 20, Loop: true})
	s.Play(10, opaqueWrapper{})
	if snap, ok, err := ActivePoseOf(s); ok || err != nil {
		t.Fatalf("opaque top layer should yield no pose, got %+v ok=%v err=%v", snap, ok, err)
	}
}

func TestActivePoseOfRecoversPanics(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStack()
	s.Play(10, boomPlayer{})
	_, ok, err := ActivePoseOf(s)
	if ok || !errors.Is(err, ErrIntrospection) {
		t.Fatalf("expected ErrIntrospection, ok=%v err=%v", ok, err)
	}
}

func TestClipAdvanceLoopsOrStops(t *testing.T) {
	testlog.Start(t)
	loop := NewClip(&Definition{Length: 3, Loop: true})
	for i := 0; i < 4; i++ {
		loop.Advance()
	}
	if loop.Progress() != 1 || !loop.Active() {
		t.Fatalf("looping clip progress=%d active=%v", loop.Progress(), loop.Active())
	}

	once := NewClip(&Definition{Length: 3})
	for i := 0; i < 5; i++ {
		once.Advance()
	}
	if once.Progress() != 3 || once.Active() {
		t.Fatalf("one-shot clip progress=%d active=%v", once.Progress(), once.Active())
	}

	paused := NewClip(&Definition{Length: 3})
	paused.Pause()
	paused.Advance()
	if paused.Progress() != 0 {
		t.Fatalf("paused clip advanced")
	}
}

func TestModifierScalesSpeed(t *testing.T) {
	testlog.Start(t)
	clip := NewClip(&Definition{Length: 100})
	m := &Modifier{Wrapped: clip, Speed: 0.5}
	for i := 0; i < 6; i++ {
		m.Advance()
	}
	if clip.Progress() != 3 {
		t.Fatalf("half-speed progress got=%d want=3", clip.Progress())
	}
}

func TestMemoryStackCountsInstallsAndRemoves(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStack()
	h1 := s.Install(1, nil)
	h2 := s.Install(1, &Definition{Length: 1})
	s.Remove(h1)
	s.Remove(h1)
	installs, removes := s.InstallCounts()
	if installs != 2 || removes != 1 || s.Len() != 1 {
		t.Fatalf("installs=%d removes=%d len=%d", installs, removes, s.Len())
	}
	if _, ok := s.Layer(h2); !ok {
		t.Fatalf("remaining layer missing")
	}
}

func TestMemoryWorldLoadedStackIgnoresAutoSpawn(t *testing.T) {
	testlog.Start(t)
	w := NewMemoryWorld()
	w.AutoSpawn = true
	actor := NewActorID()
	if _, ok := w.LoadedStack(actor); ok {
		t.Fatalf("loaded lookup must not spawn")
	}
	if len(w.Actors()) != 0 {
		t.Fatalf("expected empty world, got %v", w.Actors())
	}
	w.Spawn(actor)
	if _, ok := w.LoadedStack(actor); !ok {
		t.Fatalf("spawned actor should be loaded")
	}
	if got := w.Actors(); len(got) != 1 || got[0] != actor {
		t.Fatalf("unexpected actors: %v", got)
	}
}

func TestMemoryWorldAutoSpawn(t *testing.T) {
	testlog.Start(t)
	w := NewMemoryWorld()
	actor := NewActorID()
	if _, ok := w.Stack(actor); ok {
		t.Fatalf("unknown actor should be absent")
	}
	w.AutoSpawn = true
	if _, ok := w.Stack(actor); !ok {
		t.Fatalf("auto spawn should create the stack")
	}
	if _, ok := w.Stack(NilActor); ok {
		t.Fatalf("nil actor must never spawn")
	}
	w.Despawn(actor)
	w.AutoSpawn = false
	if _, ok := w.Stack(actor); ok {
		t.Fatalf("despawned actor should be absent")
	}
}
