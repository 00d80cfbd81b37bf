package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/posecast/internal/pose"
)

const (
	controlTypeJoin    = "peer.join"
	controlTypeJoinAck = "peer.join.ack"

	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"

	maxControlBytes = 16 * 1024
)

// Join rejection codes.
const (
	CodeOK                uint32 = 0
	CodeInvalidJoin       uint32 = 1001
	CodeActorAlreadyBound uint32 = 1002
	CodePeerAlreadyBound  uint32 = 1003
	CodeUnauthorized      uint32 = 1004
)

var (
	ErrInvalidJoin            = errors.New("session: invalid join")
	ErrInvalidJoinAck         = errors.New("session: invalid join ack")
	ErrControlMessageTooLarge = errors.New("session: control message too large")
)

// Join is the peer->relay session-start payload. It binds one connection to
// the one actor that peer drives locally.
type Join struct {
	PeerID  string       `json:"peer_id"`
	ActorID pose.ActorID `json:"actor_id"`
	// Token is checked against the relay's join validator when one is set.
	Token string `json:"token,omitempty"`
}

func (j Join) Validate() error {
	if strings.TrimSpace(j.PeerID) == "" {
		return fmt.Errorf("%w: missing peer_id", ErrInvalidJoin)
	}
	if j.ActorID == pose.NilActor {
		return fmt.Errorf("%w: missing actor_id", ErrInvalidJoin)
	}
	return nil
}

// JoinAck is the relay->peer join response.
type JoinAck struct {
	Status      string `json:"status"`
	Code        uint32 `json:"code"`
	Message     string `json:"message"`
	PeerID      string `json:"peer_id"`
	RelayID     string `json:"relay_id"`
	TimestampMS uint64 `json:"timestamp_ms"`
}

func (a JoinAck) Validate() error {
	status := strings.TrimSpace(a.Status)
	if status != AckStatusAccepted && status != AckStatusRejected {
		return fmt.Errorf("%w: invalid status", ErrInvalidJoinAck)
	}
	if strings.TrimSpace(a.PeerID) == "" {
		return fmt.Errorf("%w: missing peer_id", ErrInvalidJoinAck)
	}
	if a.TimestampMS == 0 {
		return fmt.Errorf("%w: missing timestamp_ms", ErrInvalidJoinAck)
	}
	return nil
}

type controlEnvelope struct {
	Type string   `json:"type"`
	Join *Join    `json:"join,omitempty"`
	Ack  *JoinAck `json:"join_ack,omitempty"`
}

func WriteJoin(w io.Writer, join Join) error {
	if err := join.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeJoin, Join: &join})
}

func ReadJoin(r *bufio.Reader) (Join, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return Join{}, err
	}
	if env.Type != controlTypeJoin || env.Join == nil {
		return Join{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidJoin, env.Type)
	}
	if err := env.Join.Validate(); err != nil {
		return Join{}, err
	}
	return *env.Join, nil
}

func WriteJoinAck(w io.Writer, ack JoinAck) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeJoinAck, Ack: &ack})
}

func ReadJoinAck(r *bufio.Reader) (JoinAck, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return JoinAck{}, err
	}
	if env.Type != controlTypeJoinAck || env.Ack == nil {
		return JoinAck{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidJoinAck, env.Type)
	}
	if err := env.Ack.Validate(); err != nil {
		return JoinAck{}, err
	}
	return *env.Ack, nil
}

func writeControlEnvelope(w io.Writer, env controlEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

func readControlEnvelope(r *bufio.Reader) (controlEnvelope, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxControlBytes {
			return controlEnvelope{}, ErrControlMessageTooLarge
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return controlEnvelope{}, err
		}
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return controlEnvelope{}, err
	}
	return env, nil
}
