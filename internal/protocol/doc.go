// Package protocol owns the relay wire contract.
//
// Ownership boundary:
// - frame/header primitives (protocol/frame)
// - tlv payload primitives (protocol/tlv)
// - message/field schema validation (protocol/schema)
// - session handshake and message codecs (protocol/session)
package protocol
