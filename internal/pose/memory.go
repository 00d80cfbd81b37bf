package pose

import "sort"

// Clip plays a Definition tick by tick.
type Clip struct {
	def      *Definition
	progress uint32
	playing  bool
	paused   bool
}

func NewClip(def *Definition) *Clip {
	return &Clip{def: def, playing: def != nil}
}

func (c *Clip) Active() bool { return c.playing }

func (c *Clip) Identifier() (Identifier, bool) {
	if c.def == nil || c.def.ID.IsZero() {
		return Identifier{}, false
	}
	return c.def.ID, true
}

func (c *Clip) Progress() uint32 { return c.progress }

func (c *Clip) Length() uint32 {
	if c.def == nil {
		return 0
	}
	return c.def.Length
}

func (c *Clip) Looping() bool { return c.def != nil && c.def.Loop }

func (c *Clip) Definition() *Definition { return c.def }

// Seek jumps to progress, wrapping for looping clips and clamping otherwise.
func (c *Clip) Seek(progress uint32) {
	length := c.Length()
	switch {
	case length == 0:
		c.progress = progress
	case c.Looping():
		c.progress = progress % length
	case progress >= length:
		c.progress = length
		c.playing = false
	default:
		c.progress = progress
	}
}

// Pause freezes the clip at its current progress without deactivating it.
func (c *Clip) Pause() { c.paused = true }

func (c *Clip) Resume() { c.paused = false }

// Advance moves the clip forward one tick.
func (c *Clip) Advance() {
	if !c.playing || c.paused {
		return
	}
	c.progress++
	length := c.Length()
	if length == 0 || c.progress < length {
		return
	}
	if c.Looping() {
		c.progress = 0
		return
	}
	c.progress = length
	c.playing = false
}

// Modifier wraps another player (speed scaling, masking, blending).
type Modifier struct {
	Wrapped Player
	Speed   float64
	carry   float64
}

func (m *Modifier) Active() bool { return m.Wrapped != nil && m.Wrapped.Active() }

func (m *Modifier) Inner() Player { return m.Wrapped }

// Advance forwards ticks to the wrapped player scaled by Speed.
func (m *Modifier) Advance() {
	adv, ok := m.Wrapped.(advancer)
	if !ok {
		return
	}
	speed := m.Speed
	if speed <= 0 {
		speed = 1
	}
	m.carry += speed
	for m.carry >= 1 {
		adv.Advance()
		m.carry--
	}
}

type advancer interface {
	Advance()
}

// MemoryStack is an in-process Stack. It is owned by a single tick goroutine.
type MemoryStack struct {
	next     LayerHandle
	layers   []Layer
	installs int
	removes  int
}

func NewMemoryStack() *MemoryStack {
	return &MemoryStack{}
}

func (s *MemoryStack) Layers() []Layer {
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

func (s *MemoryStack) Install(priority int, def *Definition) LayerHandle {
	var p Player
	if def != nil {
		p = NewClip(def)
	}
	h := s.Play(priority, p)
	s.installs++
	return h
}

// Play installs an arbitrary player, used by local game logic.
func (s *MemoryStack) Play(priority int, p Player) LayerHandle {
	s.next++
	s.layers = append(s.layers, Layer{Handle: s.next, Priority: priority, Player: p})
	return s.next
}

func (s *MemoryStack) Remove(h LayerHandle) {
	for i, layer := range s.layers {
		if layer.Handle != h {
			continue
		}
		s.layers = append(s.layers[:i], s.layers[i+1:]...)
		s.removes++
		return
	}
}

func (s *MemoryStack) SetProgress(h LayerHandle, progress uint32) {
	for _, layer := range s.layers {
		if layer.Handle != h {
			continue
		}
		if clip, ok := layer.Player.(*Clip); ok {
			clip.Seek(progress)
		}
		return
	}
}

// Layer returns the installed layer for h.
func (s *MemoryStack) Layer(h LayerHandle) (Layer, bool) {
	for _, layer := range s.layers {
		if layer.Handle == h {
			return layer, true
		}
	}
	return Layer{}, false
}

// Advance steps every advancing player by one tick.
func (s *MemoryStack) Advance() {
	for _, layer := range s.layers {
		if adv, ok := layer.Player.(advancer); ok {
			adv.Advance()
		}
	}
}

// Len is the number of installed layers.
func (s *MemoryStack) Len() int { return len(s.layers) }

// InstallCounts reports Install and Remove calls made through the Stack interface.
func (s *MemoryStack) InstallCounts() (installs, removes int) {
	return s.installs, s.removes
}

// MemoryWorld maps actors to in-process stacks.
type MemoryWorld struct {
	stacks map[ActorID]*MemoryStack
	// AutoSpawn creates a stack on first lookup of an unknown actor.
	AutoSpawn bool
}

func NewMemoryWorld() *MemoryWorld {
	return &MemoryWorld{stacks: make(map[ActorID]*MemoryStack)}
}

// Spawn returns the actor's stack, creating it if needed.
func (w *MemoryWorld) Spawn(actor ActorID) *MemoryStack {
	if s, ok := w.stacks[actor]; ok {
		return s
	}
	s := NewMemoryStack()
	w.stacks[actor] = s
	return s
}

func (w *MemoryWorld) Despawn(actor ActorID) {
	delete(w.stacks, actor)
}

func (w *MemoryWorld) Stack(actor ActorID) (Stack, bool) {
	s, ok := w.MemoryStack(actor)
	if !ok {
		return nil, false
	}
	return s, true
}

// LoadedStack ignores AutoSpawn.
func (w *MemoryWorld) LoadedStack(actor ActorID) (Stack, bool) {
	s, ok := w.stacks[actor]
	if !ok {
		return nil, false
	}
	return s, true
}

// Actors lists every actor with a stack, in string order.
func (w *MemoryWorld) Actors() []ActorID {
	out := make([]ActorID, 0, len(w.stacks))
	for actor := range w.stacks {
		out = append(out, actor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (w *MemoryWorld) MemoryStack(actor ActorID) (*MemoryStack, bool) {
	if s, ok := w.stacks[actor]; ok {
		return s, true
	}
	if w.AutoSpawn && actor != NilActor {
		return w.Spawn(actor), true
	}
	return nil, false
}

// Advance steps every stack by one tick.
func (w *MemoryWorld) Advance() {
	for _, s := range w.stacks {
		s.Advance()
	}
}
