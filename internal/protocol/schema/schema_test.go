package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/posecast/internal/protocol/tlv"
	"github.com/danmuck/posecast/internal/testutil/testlog"
)

func actorField() tlv.Field {
	return tlv.Bytes(FieldActorID, make([]byte, ActorIDLen))
}

func TestValidatePoseReplicateMinimal(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{actorField(), tlv.Bool(FieldHasPose, false)}
	if err := Validate(MsgPoseReplicate, fields); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateMissingHasPose(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgPoseReplicate, []tlv.Field{actorField()})
	var verr ValidationError
	if !errors.As(err, &verr) || verr.FieldID != FieldHasPose {
		t.Fatalf("expected missing has_pose, got %v", err)
	}
}

func TestValidateActorIDWidth(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.Bytes(FieldActorID, []byte{1, 2, 3})}
	err := Validate(MsgActorLeave, fields)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.FieldID != FieldActorID {
		t.Fatalf("expected actor id width error, got %v", err)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{actorField(), tlv.String(FieldHasPose, "yes")}
	err := Validate(MsgPoseReplicate, fields)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Reason != "type mismatch" {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	if Known(99) {
		t.Fatalf("99 should be unknown")
	}
	if err := Validate(99, nil); err == nil {
		t.Fatalf("expected unknown message type error")
	}
}

func TestValidateHeartbeatHasNoFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgHeartbeat, nil); err != nil {
		t.Fatalf("heartbeat validate: %v", err)
	}
}
