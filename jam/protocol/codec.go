package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrNilMessage  = errors.New("nil message")
)

// envelope is the minimal record shape needed to pick a decode branch.
type envelope struct {
	Type MessageType `json:"type"`
}

// EncodeClient serializes a client message for the wire.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.messageType(), err)
	}
	return data, nil
}

// EncodeServer serializes a server message. The agent itself never sends
// these; tests and fake servers do.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.messageType(), err)
	}
	return data, nil
}

// DecodeServer parses one inbound record. Malformed payloads and unknown
// types come back as errors; the transport logs and drops them without
// killing the receive loop.
func DecodeServer(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeJamCreated:
		return decodeAs[JamCreated](data)
	case TypeJamJoined:
		return decodeAs[JamJoined](data)
	case TypeUserJoined:
		return decodeAs[UserJoined](data)
	case TypeUserLeft:
		return decodeAs[UserLeft](data)
	case TypeUserTrackUpdated:
		return decodeAs[UserTrackUpdated](data)
	case TypePlayTrack:
		return decodeAs[PlayTrack](data)
	case TypeModeChanged:
		return decodeAs[ModeChanged](data)
	case TypeQueueUpdated:
		return decodeAs[QueueUpdated](data)
	case TypePong:
		return decodeAs[Pong](data)
	case TypeError:
		return decodeAs[Error](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeClient parses one outbound record. Used by tests standing in for the
// server side of the wire.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeCreateJam:
		return decodeAs[CreateJam](data)
	case TypeJoinJam:
		return decodeAs[JoinJam](data)
	case TypeLeaveJam:
		return decodeAs[LeaveJam](data)
	case TypeTrackUpdate:
		return decodeAs[TrackUpdate](data)
	case TypeChangeMode:
		return decodeAs[ChangeMode](data)
	case TypeQueueAdd:
		return decodeAs[QueueAdd](data)
	case TypeQueueRemove:
		return decodeAs[QueueRemove](data)
	case TypePing:
		return decodeAs[Ping](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T any](data []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode %T: %w", msg, err)
	}
	return msg, nil
}
