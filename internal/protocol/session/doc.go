// Package session owns peer<->relay session transport helpers.
//
// Ownership boundary:
// - peer.join handshake control messages
// - pose.replicate / actor.leave / heartbeat frame codecs
// - retry/backoff primitives
// - WebSocket stream adaptation so both transports share one framed codec
package session
