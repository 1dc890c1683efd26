package domain

type SessionResponseType int

const (
	ResponseAck SessionResponseType = iota
	ResponseError
	ResponseRoom
	ResponseClosed
)

func (t SessionResponseType) String() string {
	switch t {
	case ResponseAck:
		return "ack"
	case ResponseError:
		return "error"
	case ResponseRoom:
		return "room"
	case ResponseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionResponse is pushed to a connected client: a reply to one of its
// requests, or a room snapshot.
type SessionResponse struct {
	Type      SessionResponseType
	RequestID string
	RoomID    string
	Room      *Room
	Error     error
}

func NewAck(requestID, roomID string) SessionResponse {
	return SessionResponse{Type: ResponseAck, RequestID: requestID, RoomID: roomID}
}

func NewSessionError(requestID string, err error) SessionResponse {
	return SessionResponse{Type: ResponseError, RequestID: requestID, Error: err}
}

func NewRoomResponse(room Room) SessionResponse {
	redacted := room.Redacted()
	return SessionResponse{Type: ResponseRoom, RoomID: room.ID, Room: &redacted}
}

func NewClosedResponse(roomID string) SessionResponse {
	return SessionResponse{Type: ResponseClosed, RoomID: roomID}
}

func (r SessionResponse) IsError() bool {
	return r.Error != nil
}

func (r SessionResponse) String() string {
	if r.IsError() {
		return "error: " + r.Error.Error()
	}
	return r.Type.String() + ": " + r.RoomID
}
