package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func roomWith(participants ...Participant) Room {
	r := Room{Name: "r", MaxParticipants: 4, CreatedAt: t0.UnixMilli(), Participants: map[string]Participant{}}
	for _, p := range participants {
		r.Participants[p.UID] = p
	}
	return r
}

func TestNewRoom(t *testing.T) {
	host := NewIdentity("alice", "Alice", "")
	spec := CreateRoomSpec{Name: "Friday", IsPrivate: true, Password: "secret", MaxParticipants: 4}
	r := NewRoom(spec, host, t0)

	assert.Equal(t, "alice", r.HostID)
	assert.Equal(t, "Alice", r.HostName)
	assert.Equal(t, 1, r.ParticipantCount())
	assert.True(t, r.Participants["alice"].IsHost)
	assert.Equal(t, "secret", r.Password)
	assert.Equal(t, t0.UnixMilli(), r.LastActivity)
	assert.Equal(t, RoomStateActive, r.State())
	assert.True(t, r.IsHost("alice"))

	public := NewRoom(CreateRoomSpec{Name: "open", Password: "ignored", MaxParticipants: 2}, host, t0)
	assert.Empty(t, public.Password)
}

func TestElectHost(t *testing.T) {
	tests := []struct {
		name string
		room Room
		want string
	}{
		{"empty", roomWith(), ""},
		{"earliest join wins", roomWith(
			Participant{UID: "zed", JoinedAt: 10},
			Participant{UID: "amy", JoinedAt: 20},
		), "zed"},
		{"tie goes to smaller uid", roomWith(
			Participant{UID: "bob", JoinedAt: 10},
			Participant{UID: "ann", JoinedAt: 10},
		), "ann"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				assert.Equal(t, tt.want, tt.room.ElectHost())
			}
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	t.Run("dangling host is replaced", func(t *testing.T) {
		r := roomWith(
			Participant{UID: "b", DisplayName: "Bee", JoinedAt: 20},
			Participant{UID: "c", DisplayName: "Cee", JoinedAt: 30},
		)
		r.HostID = "a"
		r.HostName = "Ay"

		require.True(t, r.NormalizeHost())
		assert.Equal(t, "b", r.HostID)
		assert.Equal(t, "Bee", r.HostName)
		assert.True(t, r.Participants["b"].IsHost)
		assert.False(t, r.Participants["c"].IsHost)
		assert.Equal(t, 1, r.HostCount())
		assert.Equal(t, int64(1), r.Version)
	})

	t.Run("stale flags are fixed", func(t *testing.T) {
		r := roomWith(
			Participant{UID: "a", DisplayName: "A", JoinedAt: 10, IsHost: true},
			Participant{UID: "b", DisplayName: "B", JoinedAt: 20, IsHost: true},
		)
		r.HostID = "b"
		r.HostName = "B"

		require.True(t, r.NormalizeHost())
		assert.Equal(t, "b", r.HostID)
		assert.Equal(t, 1, r.HostCount())
	})

	t.Run("empty room has no host", func(t *testing.T) {
		r := roomWith()
		r.HostID = "a"
		r.HostName = "A"
		require.True(t, r.NormalizeHost())
		assert.Empty(t, r.HostID)
		assert.Equal(t, RoomStateEmpty, r.State())
	})

	t.Run("consistent room is untouched", func(t *testing.T) {
		r := roomWith(Participant{UID: "a", DisplayName: "A", IsHost: true})
		r.HostID = "a"
		r.HostName = "A"
		assert.False(t, r.NormalizeHost())
	})
}

func TestIsAbandoned(t *testing.T) {
	r := roomWith()
	r.LastActivity = t0.UnixMilli()
	eps := time.Millisecond

	assert.False(t, r.IsAbandoned(t0.Add(InactiveTimeout-eps), InactiveTimeout))
	assert.False(t, r.IsAbandoned(t0.Add(InactiveTimeout), InactiveTimeout))
	assert.True(t, r.IsAbandoned(t0.Add(InactiveTimeout+eps), InactiveTimeout))

	r.LastActivity = 0
	r.CreatedAt = t0.Add(-time.Hour).UnixMilli()
	assert.True(t, r.IsAbandoned(t0, InactiveTimeout), "falls back to createdAt")

	occupied := roomWith(Participant{UID: "a"})
	assert.False(t, occupied.IsAbandoned(t0.Add(time.Hour), InactiveTimeout))
}

func TestRedacted(t *testing.T) {
	r := roomWith()
	r.Password = "secret"
	assert.Empty(t, r.Redacted().Password)
	assert.Equal(t, "secret", r.Password)
}

func TestSortedParticipants(t *testing.T) {
	r := roomWith(
		Participant{UID: "c", JoinedAt: 3},
		Participant{UID: "a", JoinedAt: 1},
		Participant{UID: "b", JoinedAt: 2},
	)
	var uids []string
	for _, p := range r.SortedParticipants() {
		uids = append(uids, p.UID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, uids)
}

func TestVideoPatchIsValid(t *testing.T) {
	pos, neg := 12.5, -1.0
	playing := true
	assert.False(t, VideoPatch{}.IsValid())
	assert.True(t, VideoPatch{CurrentTime: &pos}.IsValid())
	assert.True(t, VideoPatch{IsPlaying: &playing}.IsValid())
	assert.False(t, VideoPatch{CurrentTime: &neg}.IsValid())
}
