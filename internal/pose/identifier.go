package pose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultNamespace is applied when an identifier string carries no namespace.
const DefaultNamespace = "core"

var ErrInvalidIdentifier = errors.New("pose: invalid identifier")

// ActorID is the stable per-entity key used on every peer.
type ActorID = uuid.UUID

// NilActor is the zero actor id; it never names a live actor.
var NilActor = uuid.Nil

// NewActorID returns a random actor id.
func NewActorID() ActorID {
	return uuid.New()
}

// ParseActorID parses the canonical text form of an actor id.
func ParseActorID(raw string) (ActorID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return NilActor, fmt.Errorf("pose: parse actor id %q: %w", raw, err)
	}
	return id, nil
}

// Identifier names a pose definition as namespace + path.
// Two identifiers are equal iff both components match exactly.
type Identifier struct {
	Namespace string `cbor:"1,keyasint"`
	Path      string `cbor:"2,keyasint"`
}

// NewIdentifier builds an identifier from its two components.
func NewIdentifier(namespace, path string) Identifier {
	return Identifier{Namespace: namespace, Path: path}
}

// ParseIdentifier parses "namespace:path". A missing namespace resolves to DefaultNamespace.
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	ns, path, found := strings.Cut(raw, ":")
	if !found {
		ns, path = DefaultNamespace, raw
	}
	id := Identifier{Namespace: strings.TrimSpace(ns), Path: strings.TrimSpace(path)}
	if err := id.Validate(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

// MustIdentifier is ParseIdentifier for static tables; it panics on bad input.
func MustIdentifier(raw string) Identifier {
	id, err := ParseIdentifier(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identifier) Validate() error {
	if id.Namespace == "" {
		return fmt.Errorf("%w: missing namespace", ErrInvalidIdentifier)
	}
	if id.Path == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidIdentifier)
	}
	if strings.Contains(id.Namespace, ":") {
		return fmt.Errorf("%w: namespace %q contains ':'", ErrInvalidIdentifier, id.Namespace)
	}
	return nil
}

func (id Identifier) IsZero() bool {
	return id.Namespace == "" && id.Path == ""
}

func (id Identifier) String() string {
	if id.IsZero() {
		return ""
	}
	return id.Namespace + ":" + id.Path
}
