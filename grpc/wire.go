package pb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client operations on the Session stream.
const (
	OpHello         = "hello"
	OpCreate        = "create"
	OpJoin          = "join"
	OpLeave         = "leave"
	OpSelectAnime   = "selectAnime"
	OpChangeEpisode = "changeEpisode"
	OpVideo         = "video"
	OpChat          = "chat"
)

// Server message types on the Session stream.
const (
	TypeAck    = "ack"
	TypeError  = "error"
	TypeRoom   = "room"
	TypeClosed = "closed"
)

// ClientMessage is one request on the Session stream. Only the fields of
// its op are set.
type ClientMessage struct {
	Op string `json:"op"`
	ID string `json:"id,omitempty"`

	UID         string `json:"uid,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`

	RoomID   string `json:"roomId,omitempty"`
	Password string `json:"password,omitempty"`

	Name            string `json:"name,omitempty"`
	IsPrivate       bool   `json:"isPrivate,omitempty"`
	MaxParticipants int    `json:"maxParticipants,omitempty"`

	Slug    string `json:"slug,omitempty"`
	Episode int    `json:"episode,omitempty"`

	CurrentTime *float64 `json:"currentTime,omitempty"`
	IsPlaying   *bool    `json:"isPlaying,omitempty"`
	BaseVersion *int64   `json:"baseVersion,omitempty"`

	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ServerMessage is one reply or room update on the Session stream.
type ServerMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Room    json.RawMessage `json:"room,omitempty"`
}

// RoomListRequest opens a ListRooms stream. With Once set the server sends
// the current list and ends the stream.
type RoomListRequest struct {
	Once bool `json:"once,omitempty"`
}

type RoomList struct {
	Rooms json.RawMessage `json:"rooms"`
}

// Encode converts a wire message into its Struct form.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return s, nil
}

// Decode fills v from a Struct.
func Decode(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
