package domain

import (
	"strings"
	"unicode"
)

// MaxKeyLength bounds user and room ids, which are used as store keys.
const MaxKeyLength = 128

// IsValidKey reports whether s can name a user or room. Keys must not be
// empty, must not be "." or "..", and must not contain slashes or control
// characters.
func IsValidKey(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > MaxKeyLength {
		return false
	}
	return !strings.ContainsFunc(s, func(r rune) bool {
		return r == '/' || r == '\\' || unicode.IsControl(r)
	})
}

// Identity is the already-authenticated user behind a client session.
type Identity struct {
	UID         string
	DisplayName string
	PhotoURL    string
}

func NewIdentity(uid, displayName, photoURL string) Identity {
	if displayName == "" {
		displayName = uid
	}
	return Identity{
		UID:         uid,
		DisplayName: displayName,
		PhotoURL:    photoURL,
	}
}

func (i Identity) IsValid() bool {
	return IsValidKey(i.UID)
}
