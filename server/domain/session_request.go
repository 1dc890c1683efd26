package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type SessionRequestType int

const (
	RequestUnknown SessionRequestType = iota
	RequestHello
	RequestCreate
	RequestJoin
	RequestLeave
	RequestSelectAnime
	RequestChangeEpisode
	RequestVideo
	RequestChat
)

func (t SessionRequestType) String() string {
	switch t {
	case RequestHello:
		return "hello"
	case RequestCreate:
		return "create"
	case RequestJoin:
		return "join"
	case RequestLeave:
		return "leave"
	case RequestSelectAnime:
		return "selectAnime"
	case RequestChangeEpisode:
		return "changeEpisode"
	case RequestVideo:
		return "video"
	case RequestChat:
		return "chat"
	default:
		return "unknown"
	}
}

func ParseSessionRequestType(s string) SessionRequestType {
	for t := RequestHello; t <= RequestChat; t++ {
		if t.String() == s {
			return t
		}
	}
	return RequestUnknown
}

// SessionRequest is one command sent by a connected client.
type SessionRequest struct {
	ID       string
	Type     SessionRequestType
	Identity Identity
	RoomID   string
	Password string
	Spec     CreateRoomSpec
	Slug     string
	Episode  int
	Video    VideoPatch
	Message  string
	SentAt   time.Time
}

func NewHelloRequest(id Identity) SessionRequest {
	return SessionRequest{Type: RequestHello, Identity: id}
}

func NewJoinRequest(requestID, roomID, password string) SessionRequest {
	return SessionRequest{
		ID:       requestID,
		Type:     RequestJoin,
		RoomID:   roomID,
		Password: password,
	}
}

func NewChatRequest(requestID, message string, sentAt time.Time) SessionRequest {
	return SessionRequest{
		ID:      requestID,
		Type:    RequestChat,
		Message: message,
		SentAt:  sentAt,
	}
}

func (r SessionRequest) IsValid() bool {
	switch r.Type {
	case RequestHello:
		return r.Identity.IsValid()
	case RequestCreate:
		return r.Spec.Validate() == nil
	case RequestJoin:
		return IsValidKey(r.RoomID)
	case RequestLeave:
		return true
	case RequestSelectAnime:
		return r.Slug != ""
	case RequestChangeEpisode:
		return r.Episode > 0
	case RequestVideo:
		return r.Video.IsValid()
	case RequestChat:
		return r.Message != ""
	default:
		return false
	}
}

// Validate is IsValid with the reason a request was rejected.
func (r SessionRequest) Validate() error {
	switch r.Type {
	case RequestCreate:
		return r.Spec.Validate()
	case RequestChat:
		text := strings.TrimSpace(r.Message)
		if text == "" {
			return ErrEmptyMessage
		}
		if utf8.RuneCountInString(text) > MaxMessageLength {
			return fmt.Errorf("%w: %d characters max", ErrMessageTooLong, MaxMessageLength)
		}
	case RequestChangeEpisode:
		if r.Episode < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidEpisode, r.Episode)
		}
	}
	if !r.IsValid() {
		return fmt.Errorf("%w: malformed %s", ErrInvalidRequest, r.Type)
	}
	return nil
}

func (r SessionRequest) String() string {
	switch r.Type {
	case RequestHello:
		return r.Type.String() + ": " + r.Identity.UID
	case RequestJoin:
		return r.Type.String() + ": " + r.RoomID
	case RequestSelectAnime:
		return r.Type.String() + ": " + r.Slug
	default:
		return r.Type.String()
	}
}
