package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSessionRequestType(t *testing.T) {
	for typ := RequestHello; typ <= RequestChat; typ++ {
		assert.Equal(t, typ, ParseSessionRequestType(typ.String()))
	}
	assert.Equal(t, RequestUnknown, ParseSessionRequestType("dance"))
}

func TestSessionRequestIsValid(t *testing.T) {
	assert.True(t, NewHelloRequest(NewIdentity("u1", "", "")).IsValid())
	assert.False(t, NewHelloRequest(Identity{}).IsValid())
	assert.True(t, NewJoinRequest("1", "room", "").IsValid())
	assert.False(t, NewJoinRequest("1", "", "").IsValid())
	assert.True(t, NewChatRequest("2", "hi", time.Now()).IsValid())
	assert.False(t, SessionRequest{Type: RequestChangeEpisode}.IsValid())
	assert.False(t, SessionRequest{Type: RequestCreate, Spec: CreateRoomSpec{Name: "x", MaxParticipants: 7}}.IsValid())
	assert.True(t, SessionRequest{Type: RequestLeave}.IsValid())
}

func TestIsValidKey(t *testing.T) {
	for _, ok := range []string{"u1", "alice@example.com", "01J9ZQ8X", "部屋"} {
		assert.True(t, IsValidKey(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "a/b", "/", "../rooms", `a\b`, "a\nb", strings.Repeat("x", MaxKeyLength+1)} {
		assert.False(t, IsValidKey(bad), bad)
	}
}

func TestPathLikeIdsAreRejected(t *testing.T) {
	assert.False(t, NewHelloRequest(NewIdentity("..", "", "")).IsValid())
	assert.False(t, NewHelloRequest(NewIdentity("a/b", "", "")).IsValid())
	assert.False(t, NewJoinRequest("1", "..", "").IsValid())
	assert.False(t, NewJoinRequest("1", "room/participants", "").IsValid())
	assert.ErrorIs(t, NewJoinRequest("1", ".", "").Validate(), ErrInvalidRequest)
}

func TestSessionRequestValidate(t *testing.T) {
	assert.NoError(t, NewChatRequest("1", "hi", time.Time{}).Validate())
	assert.ErrorIs(t, NewChatRequest("1", "   ", time.Time{}).Validate(), ErrEmptyMessage)
	assert.ErrorIs(t, NewChatRequest("1", strings.Repeat("a", MaxMessageLength+1), time.Time{}).Validate(), ErrMessageTooLong)
	assert.ErrorIs(t, SessionRequest{Type: RequestChangeEpisode}.Validate(), ErrInvalidEpisode)
	assert.ErrorIs(t, SessionRequest{Type: RequestCreate}.Validate(), ErrInvalidRoomSpec)
	assert.ErrorIs(t, SessionRequest{Type: RequestSelectAnime}.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, SessionRequest{}.Validate(), ErrInvalidRequest)
}

func TestNewRoomResponseRedactsPassword(t *testing.T) {
	r := Room{ID: "r1", Password: "secret"}
	resp := NewRoomResponse(r)
	assert.Equal(t, ResponseRoom, resp.Type)
	assert.Equal(t, "r1", resp.RoomID)
	assert.Empty(t, resp.Room.Password)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeNotFound, ErrorCode(ErrRoomNotFound))
	assert.Equal(t, CodePermissionDenied, ErrorCode(ErrWrongPassword))
	assert.Equal(t, CodeRoomFull, ErrorCode(ErrRoomFull))
	assert.Equal(t, CodeStaleVersion, ErrorCode(ErrStaleVersion))
	assert.Equal(t, CodeFailedPrecondition, ErrorCode(ErrNotConnected))
	assert.Equal(t, CodeInvalidArgument, ErrorCode(ErrMessageTooLong))
	assert.Equal(t, CodeInternal, ErrorCode(assert.AnError))
}
