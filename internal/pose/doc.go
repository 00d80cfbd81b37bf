// Package pose owns the presentation-layer pose model.
//
// Ownership boundary:
// - actor and pose identifiers
// - pose definitions and the inline definition blob
// - pose-stack introspection (layers, wrappers, playable clips)
// - catalog lookup with namespace/path fallback variants
//
// Nothing in this package touches the network. Rendering collaborators
// implement Stack; MemoryStack and MemoryWorld are the in-process versions
// used by the demo peer and by tests.
package pose
