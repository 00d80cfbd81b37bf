package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/frame"
	"github.com/danmuck/posecast/internal/protocol/schema"
	"github.com/danmuck/posecast/internal/protocol/tlv"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PoseState is the optional pose section of a replication message.
type PoseState struct {
	ID       pose.Identifier
	Progress uint64
	Length   uint64
	Loop     bool
	Stop     bool
	// Inline is the encoded pose.Definition blob; empty when omitted.
	Inline []byte
}

// Replication is one pose.replicate message. A nil Pose is an implicit stop.
type Replication struct {
	Actor pose.ActorID
	Pose  *PoseState
	// OriginPeer is stamped by the relay; peers leave it empty.
	OriginPeer string
}

// StopFor builds an explicit stop for actor.
func StopFor(actor pose.ActorID) Replication {
	return Replication{Actor: actor}
}

// IsStop reports whether r removes the actor's replicated pose.
func (r Replication) IsStop() bool {
	return r.Pose == nil || r.Pose.Stop
}

func (r Replication) Validate() error {
	if r.Actor == pose.NilActor {
		return fmt.Errorf("pose.replicate missing actor_id")
	}
	if r.Pose != nil && !r.Pose.Stop {
		if err := r.Pose.ID.Validate(); err != nil {
			return fmt.Errorf("pose.replicate: %w", err)
		}
	}
	if r.Pose != nil && len(r.Pose.Inline) > pose.MaxBlobBytes {
		return pose.ErrBlobTooLarge
	}
	return nil
}

// Leave announces that an actor's owning peer left the session.
type Leave struct {
	Actor      pose.ActorID
	OriginPeer string
}

func replicationFields(r Replication) []tlv.Field {
	fields := []tlv.Field{
		tlv.Bytes(schema.FieldActorID, r.Actor[:]),
		tlv.Bool(schema.FieldHasPose, r.Pose != nil),
	}
	if p := r.Pose; p != nil {
		fields = append(fields,
			tlv.String(schema.FieldNamespace, p.ID.Namespace),
			tlv.String(schema.FieldPath, p.ID.Path),
			tlv.Uvarint(schema.FieldProgress, p.Progress),
			tlv.Uvarint(schema.FieldLength, p.Length),
			tlv.Bool(schema.FieldLoop, p.Loop),
			tlv.Bool(schema.FieldStop, p.Stop),
		)
		if len(p.Inline) > 0 {
			fields = append(fields, tlv.Bytes(schema.FieldInline, p.Inline))
		}
	}
	if r.OriginPeer != "" {
		fields = append(fields, tlv.String(schema.FieldOriginPeer, r.OriginPeer))
	}
	return fields
}

// EncodeReplicationFrame encodes r as a complete wire frame.
func EncodeReplicationFrame(messageID uint64, flags uint32, r Replication) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	fields := replicationFields(r)
	if err := schema.Validate(schema.MsgPoseReplicate, fields); err != nil {
		return nil, err
	}
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: schema.MsgPoseReplicate,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
}

// DecodeReplicationFrame decodes a pose.replicate frame. Only an unreadable
// actor id is an error; every other defect in the pose section decodes to a
// stop so the receive path never fails on stale or partial fields.
func DecodeReplicationFrame(f frame.Frame) (Replication, error) {
	if f.Header.MessageType != schema.MsgPoseReplicate {
		return Replication{}, fmt.Errorf("session: unexpected message_type=%d", f.Header.MessageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Replication{}, err
	}
	actor, err := decodeActor(fields)
	if err != nil {
		return Replication{}, err
	}
	r := Replication{Actor: actor}
	if origin, ok := tlv.GetField(fields, schema.FieldOriginPeer); ok {
		r.OriginPeer, _ = origin.AsString()
	}
	p, err := decodePoseState(fields)
	if err != nil {
		log.Debug().
			Str("actor_id", actor.String()).
			Err(err).
			Msg("session.DecodeReplicationFrame malformed pose section, treating as stop")
		return r, nil
	}
	r.Pose = p
	return r, nil
}

func decodeActor(fields []tlv.Field) (pose.ActorID, error) {
	f, ok := tlv.GetField(fields, schema.FieldActorID)
	if !ok {
		return pose.NilActor, schema.ValidationError{MessageType: schema.MsgPoseReplicate, FieldID: schema.FieldActorID, Reason: "missing required field"}
	}
	raw, err := f.AsBytes()
	if err != nil {
		return pose.NilActor, err
	}
	actor, err := uuid.FromBytes(raw)
	if err != nil {
		return pose.NilActor, fmt.Errorf("session: actor_id: %w", err)
	}
	if actor == pose.NilActor {
		return pose.NilActor, fmt.Errorf("session: nil actor_id")
	}
	return actor, nil
}

// decodePoseState returns (nil, nil) for "no pose data".
func decodePoseState(fields []tlv.Field) (*PoseState, error) {
	hasField, ok := tlv.GetField(fields, schema.FieldHasPose)
	if !ok {
		return nil, nil
	}
	has, err := hasField.AsBool()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}

	var p PoseState
	stop, err := optionalBool(fields, schema.FieldStop)
	if err != nil {
		return nil, err
	}
	if stop {
		return nil, nil
	}
	ns, err := requiredString(fields, schema.FieldNamespace)
	if err != nil {
		return nil, err
	}
	path, err := requiredString(fields, schema.FieldPath)
	if err != nil {
		return nil, err
	}
	p.ID = pose.NewIdentifier(ns, path)
	if err := p.ID.Validate(); err != nil {
		return nil, err
	}
	if p.Progress, err = optionalUvarint(fields, schema.FieldProgress); err != nil {
		return nil, err
	}
	if p.Length, err = optionalUvarint(fields, schema.FieldLength); err != nil {
		return nil, err
	}
	if p.Loop, err = optionalBool(fields, schema.FieldLoop); err != nil {
		return nil, err
	}
	if f, ok := tlv.GetField(fields, schema.FieldInline); ok {
		inline, err := f.AsBytes()
		if err != nil {
			return nil, err
		}
		if len(inline) > pose.MaxBlobBytes {
			return nil, pose.ErrBlobTooLarge
		}
		p.Inline = inline
	}
	return &p, nil
}

// EncodeLeaveFrame encodes an actor.leave frame.
func EncodeLeaveFrame(messageID uint64, leave Leave) ([]byte, error) {
	if leave.Actor == pose.NilActor {
		return nil, fmt.Errorf("actor.leave missing actor_id")
	}
	fields := []tlv.Field{tlv.Bytes(schema.FieldActorID, leave.Actor[:])}
	if leave.OriginPeer != "" {
		fields = append(fields, tlv.String(schema.FieldOriginPeer, leave.OriginPeer))
	}
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: schema.MsgActorLeave,
			Flags:       frame.FlagRelayed,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
}

func DecodeLeaveFrame(f frame.Frame) (Leave, error) {
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Leave{}, err
	}
	if err := schema.Validate(schema.MsgActorLeave, fields); err != nil {
		return Leave{}, err
	}
	actor, err := decodeActor(fields)
	if err != nil {
		return Leave{}, err
	}
	leave := Leave{Actor: actor}
	if origin, ok := tlv.GetField(fields, schema.FieldOriginPeer); ok {
		leave.OriginPeer, _ = origin.AsString()
	}
	return leave, nil
}

// EncodeHeartbeatFrame encodes an empty heartbeat frame.
func EncodeHeartbeatFrame(messageID uint64) ([]byte, error) {
	return frame.Marshal(frame.Frame{
		Header: frame.Header{MessageID: messageID, MessageType: schema.MsgHeartbeat},
	}, frame.DefaultLimits())
}

// ReadFrame reads one framed message from the stream.
func ReadFrame(r io.Reader) (frame.Frame, error) {
	return frame.ReadFrame(r, frame.DefaultLimits())
}

// DecodeFrameBytes parses one frame held entirely in b.
func DecodeFrameBytes(b []byte) (frame.Frame, error) {
	return frame.ReadFrame(bytes.NewReader(b), frame.DefaultLimits())
}

func requiredString(fields []tlv.Field, id uint16) (string, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return "", fmt.Errorf("session: missing field %d", id)
	}
	return f.AsString()
}

func optionalBool(fields []tlv.Field, id uint16) (bool, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return false, nil
	}
	return f.AsBool()
}

func optionalUvarint(fields []tlv.Field, id uint16) (uint64, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0, nil
	}
	return f.AsUvarint()
}
