package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateRoomSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    CreateRoomSpec
		wantErr bool
	}{
		{"public", CreateRoomSpec{Name: "Movie night", MaxParticipants: 4}, false},
		{"private with password", CreateRoomSpec{Name: "x", IsPrivate: true, Password: "pw", MaxParticipants: 2}, false},
		{"blank name", CreateRoomSpec{Name: "   ", MaxParticipants: 4}, true},
		{"long name", CreateRoomSpec{Name: strings.Repeat("a", 65), MaxParticipants: 4}, true},
		{"private without password", CreateRoomSpec{Name: "x", IsPrivate: true, MaxParticipants: 4}, true},
		{"size not offered", CreateRoomSpec{Name: "x", MaxParticipants: 3}, true},
		{"zero size", CreateRoomSpec{Name: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRoomSpec)
				assert.Equal(t, CodeInvalidArgument, ErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateRoomSpecNormalized(t *testing.T) {
	s := CreateRoomSpec{Name: "  spaced  ", Password: "leak", MaxParticipants: 2}.Normalized()
	assert.Equal(t, "spaced", s.Name)
	assert.Empty(t, s.Password)
}
