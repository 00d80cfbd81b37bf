package schema

import (
	"fmt"

	"github.com/danmuck/posecast/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs from the wire contract.
const (
	MsgPoseReplicate uint32 = 1
	MsgActorLeave    uint32 = 2
	MsgHeartbeat     uint32 = 3
)

// Field IDs from the wire contract.
const (
	FieldActorID uint16 = 1
	FieldHasPose uint16 = 2

	FieldNamespace uint16 = 10
	FieldPath      uint16 = 11
	FieldProgress  uint16 = 12
	FieldLength    uint16 = 13
	FieldLoop      uint16 = 14
	FieldStop      uint16 = 15
	FieldInline    uint16 = 16

	FieldOriginPeer uint16 = 20
)

// ActorIDLen is the fixed width of FieldActorID.
const ActorIDLen = 16

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

// Pose fields are deliberately optional: their absence means stop.
var requirements = map[uint32][]Requirement{
	MsgPoseReplicate: {
		{FieldActorID, tlv.TypeBytes},
		{FieldHasPose, tlv.TypeBool},
	},
	MsgActorLeave: {
		{FieldActorID, tlv.TypeBytes},
	},
	MsgHeartbeat: {},
}

// Known reports whether messageType is part of the contract.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
		if req.ID == FieldActorID && len(f.Value) != ActorIDLen {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "actor id must be 16 bytes"}
		}
	}
	return nil
}
