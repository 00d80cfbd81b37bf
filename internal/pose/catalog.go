package pose

import (
	"fmt"
	"path"
	"strings"
)

// AnimationsPrefix is the conventional directory for authored poses.
const AnimationsPrefix = "animations/"

// Catalog is a process-local lookup of definitions by identifier. It is
// populated once at startup and read-only afterwards.
type Catalog struct {
	defs               map[Identifier]*Definition
	fallbackNamespaces []string
}

// NewCatalog builds an empty catalog searching fallbackNamespaces in order
// after the exact namespace.
func NewCatalog(fallbackNamespaces ...string) *Catalog {
	ns := make([]string, 0, len(fallbackNamespaces))
	for _, raw := range fallbackNamespaces {
		if v := strings.TrimSpace(raw); v != "" {
			ns = append(ns, v)
		}
	}
	return &Catalog{
		defs:               make(map[Identifier]*Definition),
		fallbackNamespaces: ns,
	}
}

// Add registers def under def.ID. A later Add for the same id replaces it.
func (c *Catalog) Add(def *Definition) error {
	if def == nil {
		return fmt.Errorf("pose: catalog add nil definition")
	}
	if err := def.ID.Validate(); err != nil {
		return fmt.Errorf("pose: catalog add: %w", err)
	}
	c.defs[def.ID] = def
	return nil
}

// Len reports the number of registered definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// FallbackNamespaces returns the configured alias namespaces in search order.
func (c *Catalog) FallbackNamespaces() []string {
	out := make([]string, len(c.fallbackNamespaces))
	copy(out, c.fallbackNamespaces)
	return out
}

// Get is an exact-identifier lookup.
func (c *Catalog) Get(id Identifier) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	def, ok := c.defs[id]
	return def, ok
}

// Lookup searches the exact identifier, then every fallback variant, and
// reports which identifier matched.
func (c *Catalog) Lookup(id Identifier) (*Definition, Identifier, bool) {
	if c == nil {
		return nil, Identifier{}, false
	}
	for _, candidate := range c.Candidates(id) {
		if def, ok := c.defs[candidate]; ok {
			return def, candidate, true
		}
	}
	return nil, Identifier{}, false
}

// Candidates lists the search order for id:
// exact, alias namespaces, "animations/"-prefixed path, bare name.
func (c *Catalog) Candidates(id Identifier) []Identifier {
	if id.Path == "" {
		return nil
	}
	namespaces := make([]string, 0, 1+len(c.fallbackNamespaces))
	namespaces = append(namespaces, id.Namespace)
	namespaces = append(namespaces, c.fallbackNamespaces...)

	seen := make(map[Identifier]struct{})
	out := make([]Identifier, 0, 3*len(namespaces))
	add := func(ns, p string) {
		if ns == "" || p == "" {
			return
		}
		candidate := Identifier{Namespace: ns, Path: p}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	for _, ns := range namespaces {
		add(ns, id.Path)
	}
	if !strings.HasPrefix(id.Path, AnimationsPrefix) {
		for _, ns := range namespaces {
			add(ns, AnimationsPrefix+id.Path)
		}
	}
	bare := path.Base(strings.TrimPrefix(id.Path, AnimationsPrefix))
	if bare != "." && bare != "/" {
		for _, ns := range namespaces {
			add(ns, bare)
		}
	}
	return out
}
