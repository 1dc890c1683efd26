package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrAnimeNotFound   = errors.New("anime not found")
	ErrWrongPassword   = errors.New("wrong room password")
	ErrNotHost         = errors.New("only the host can do that")
	ErrNotParticipant  = errors.New("not a participant of this room")
	ErrRoomFull        = errors.New("room is full")
	ErrStaleVersion    = errors.New("room state changed, refresh and retry")
	ErrInvalidRoomSpec = errors.New("invalid room settings")
	ErrInvalidEpisode  = errors.New("invalid episode")
	ErrEmptyMessage    = errors.New("empty message")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNotJoined       = errors.New("not in a room")
	ErrNotConnected    = errors.New("session is not connected")
	ErrUnavailable     = errors.New("service unavailable")
)

// Wire codes sent to clients alongside an error message.
const (
	CodeNotFound           = "not-found"
	CodePermissionDenied   = "permission-denied"
	CodeRoomFull           = "room-full"
	CodeStaleVersion       = "stale-version"
	CodeInvalidArgument    = "invalid-argument"
	CodeFailedPrecondition = "failed-precondition"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal"
)

func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrAnimeNotFound):
		return CodeNotFound
	case errors.Is(err, ErrWrongPassword), errors.Is(err, ErrNotHost), errors.Is(err, ErrNotParticipant):
		return CodePermissionDenied
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrStaleVersion):
		return CodeStaleVersion
	case errors.Is(err, ErrInvalidRoomSpec), errors.Is(err, ErrInvalidEpisode),
		errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrInvalidRequest):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotJoined), errors.Is(err, ErrNotConnected):
		return CodeFailedPrecondition
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
