package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenRooms(t *testing.T) {
	full := roomWith(Participant{UID: "a"}, Participant{UID: "b"})
	full.ID, full.MaxParticipants, full.CreatedAt = "full", 2, 300

	older := roomWith(Participant{UID: "a"})
	older.ID, older.CreatedAt = "older", 100
	older.Password = "secret"

	newer := roomWith()
	newer.ID, newer.CreatedAt = "newer", 200
	newer.Anime = &RoomAnime{Title: "Frieren"}

	got := OpenRooms([]Room{older, full, newer})
	if assert.Len(t, got, 2) {
		assert.Equal(t, "newer", got[0].ID)
		assert.Equal(t, "Frieren", got[0].AnimeTitle)
		assert.Equal(t, "older", got[1].ID)
		assert.Equal(t, 1, got[1].ParticipantCount)
	}
}
