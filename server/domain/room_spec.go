package domain

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

const maxRoomNameLength = 64

// AllowedMaxParticipants are the room sizes a creator can pick from.
var AllowedMaxParticipants = []int{2, 4, 6, 8, 10}

type CreateRoomSpec struct {
	Name            string
	IsPrivate       bool
	Password        string
	MaxParticipants int
}

// Normalized trims the name and drops the password of public rooms.
func (s CreateRoomSpec) Normalized() CreateRoomSpec {
	s.Name = strings.TrimSpace(s.Name)
	if !s.IsPrivate {
		s.Password = ""
	}
	return s
}

func (s CreateRoomSpec) Validate() error {
	s = s.Normalized()
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRoomSpec)
	}
	if utf8.RuneCountInString(s.Name) > maxRoomNameLength {
		return fmt.Errorf("%w: name is longer than %d characters", ErrInvalidRoomSpec, maxRoomNameLength)
	}
	if s.IsPrivate && s.Password == "" {
		return fmt.Errorf("%w: private rooms need a password", ErrInvalidRoomSpec)
	}
	if !slices.Contains(AllowedMaxParticipants, s.MaxParticipants) {
		return fmt.Errorf("%w: max participants must be one of %v", ErrInvalidRoomSpec, AllowedMaxParticipants)
	}
	return nil
}
