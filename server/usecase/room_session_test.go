package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

func TestRoomSessionsHandleIsShared(t *testing.T) {
	f := newFixture(t)

	h := f.rooms.Handle("r1")
	assert.Same(t, h, f.rooms.Handle("r1"))
	assert.NotSame(t, h, f.rooms.Handle("r2"))
	assert.Equal(t, 2, f.rooms.Len())

	f.rooms.Forget("r1")
	assert.NotSame(t, h, f.rooms.Handle("r1"))
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture(t)

	_, err := f.join(t, "nope", "alice", "")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestJoinPrivateRoomRequiresPassword(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", domain.CreateRoomSpec{Name: "P1", IsPrivate: true, Password: "secret", MaxParticipants: 4})

	_, err := f.join(t, roomID, "bob", "wrong")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
	assert.Equal(t, 1, f.room(t, roomID).ParticipantCount())

	room, err := f.join(t, roomID, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, 2, room.ParticipantCount())
	assert.Equal(t, "alice", room.HostID)
	assert.False(t, room.Participants["bob"].IsHost)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(2))

	_, err := f.join(t, roomID, "bob", "")
	require.NoError(t, err)

	_, err = f.join(t, roomID, "carol", "")
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.Equal(t, 2, f.room(t, roomID).ParticipantCount())
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "host", publicSpec(4))

	const joiners = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var joined, full int
	for i := 0; i < joiners; i++ {
		uid := fmt.Sprintf("user-%02d", i)
		f.connect(t, "conn-"+uid)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rooms.Handle(roomID).Join(context.Background(), "conn-"+uid, domain.NewIdentity(uid, "", ""), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, domain.ErrRoomFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, joined)
	assert.Equal(t, joiners-3, full)
	room := f.room(t, roomID)
	assert.Equal(t, 4, room.ParticipantCount())
	requireHostInvariant(t, room)
}

func TestRejoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(2))

	_, err := f.join(t, roomID, "bob", "")
	require.NoError(t, err)
	before := f.room(t, roomID)

	f.clock.Advance(time.Minute)
	room, err := f.join(t, roomID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, before.Participants, room.Participants)

	room, err = f.join(t, roomID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, room.ParticipantCount())
}

func TestJoinWithoutConnectionRollsBack(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(4))

	_, err := f.rooms.Handle(roomID).Join(context.Background(), "ghost", domain.NewIdentity("bob", "", ""), "")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	room := f.room(t, roomID)
	assert.False(t, room.HasParticipant("bob"))
	assert.Equal(t, "alice", room.HostID)
}

func TestLeavePassesHostToLongestPresent(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(6))

	f.clock.Advance(time.Second)
	_, err := f.join(t, roomID, "dave", "")
	require.NoError(t, err)
	_, err = f.join(t, roomID, "carol", "")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.join(t, roomID, "bob", "")
	require.NoError(t, err)

	version := f.room(t, roomID).Version
	require.NoError(t, f.rooms.Handle(roomID).Leave(context.Background(), "conn-alice", "alice"))

	room := f.room(t, roomID)
	assert.Equal(t, "carol", room.HostID, "ties on joinedAt go to the smaller uid")
	assert.Greater(t, room.Version, version)
	requireHostInvariant(t, room)
}

func TestLeaveCancelsDisconnectHook(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(4))
	handle := f.rooms.Handle(roomID)

	require.NoError(t, handle.Leave(context.Background(), "conn-alice", "alice"))

	require.NoError(t, f.store.Connect("second-tab"))
	_, err := handle.Join(context.Background(), "second-tab", domain.NewIdentity("alice", "", ""), "")
	require.NoError(t, err)

	require.NoError(t, f.store.Disconnect("conn-alice"))
	assert.True(t, f.room(t, roomID).HasParticipant("alice"))

	require.NoError(t, f.store.Disconnect("second-tab"))
	assert.False(t, f.room(t, roomID).HasParticipant("alice"))
}

func TestLeaveLastParticipantEmptiesRoom(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(2))

	f.clock.Advance(time.Minute)
	require.NoError(t, f.rooms.Handle(roomID).Leave(context.Background(), "conn-alice", "alice"))

	room := f.room(t, roomID)
	assert.Equal(t, domain.RoomStateEmpty, room.State())
	assert.Empty(t, room.HostID)
	assert.Equal(t, f.clock.Now().UnixMilli(), room.LastActivity)

	err := f.rooms.Handle(roomID).Leave(context.Background(), "conn-alice", "alice")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	room, err = f.join(t, roomID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", room.HostID)
	assert.True(t, room.Participants["bob"].IsHost)
	assert.Equal(t, domain.RoomStateActive, room.State())
}

func TestHostFailoverOnDisconnect(t *testing.T) {
	f := newFixture(t)
	warden := NewHostWarden(f.store, f.clock.Now)
	warden.Start(context.Background())
	defer warden.Stop()

	roomID := f.createRoom(t, "A", publicSpec(2))
	f.clock.Advance(time.Second)
	_, err := f.join(t, roomID, "B", "")
	require.NoError(t, err)

	require.NoError(t, f.store.Disconnect("conn-A"))

	require.Eventually(t, func() bool {
		return f.room(t, roomID).HostID == "B"
	}, 2*time.Second, 10*time.Millisecond)

	room := f.room(t, roomID)
	assert.True(t, room.Participants["B"].IsHost)
	assert.False(t, room.HasParticipant("A"))
	assert.Equal(t, domain.RoomStateActive, room.State())
	requireHostInvariant(t, room)
}

// A joiner of a room whose host dropped without being repaired yet must not
// take the host seat from someone who has been present longer.
func TestJoinElectsLongestPresentWhenHostIsGone(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "A", publicSpec(4))
	f.clock.Advance(time.Second)
	_, err := f.join(t, roomID, "B", "")
	require.NoError(t, err)

	require.NoError(t, f.store.Disconnect("conn-A"))
	stale := f.room(t, roomID)
	require.False(t, stale.HasParticipant("A"))
	require.Equal(t, "A", stale.HostID)

	f.clock.Advance(time.Second)
	room, err := f.join(t, roomID, "C", "")
	require.NoError(t, err)
	assert.Equal(t, "B", room.HostID)
	assert.False(t, room.Participants["C"].IsHost)
	assert.Greater(t, room.Version, stale.Version)
	requireHostInvariant(t, room)
}

func TestJoinRejectsPathLikeIds(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "host", publicSpec(4))

	for _, uid := range []string{"..", ".", "x/..", "../.."} {
		_, err := f.join(t, roomID, uid, "")
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, uid)
	}
	for _, id := range []string{"..", roomID + "/participants"} {
		f.connect(t, "conn-eve")
		_, err := f.rooms.Handle(id).Join(context.Background(), "conn-eve", domain.NewIdentity("eve", "", ""), "")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound, id)
	}

	// None of the rejected joins may have tied the room to another
	// connection.
	require.NoError(t, f.store.Disconnect("conn-eve"))
	for _, uid := range []string{"..", ".", "x/..", "../.."} {
		require.NoError(t, f.store.Disconnect("conn-"+uid))
	}
	room := f.room(t, roomID)
	assert.Equal(t, "host", room.HostID)
	assert.Equal(t, 1, room.ParticipantCount())
	requireHostInvariant(t, room)
}

func TestWardenStampsActivityWhenRoomEmpties(t *testing.T) {
	f := newFixture(t)
	warden := NewHostWarden(f.store, f.clock.Now)
	warden.Start(context.Background())
	defer warden.Stop()

	roomID := f.createRoom(t, "A", publicSpec(2))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.Disconnect("conn-A"))

	require.Eventually(t, func() bool {
		room := f.room(t, roomID)
		return room.HostID == "" && room.LastActivity == f.clock.Now().UnixMilli()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWardenRepairIsNoopOnHealthyRoom(t *testing.T) {
	f := newFixture(t)
	warden := NewHostWarden(f.store, f.clock.Now)
	roomID := f.createRoom(t, "A", publicSpec(2))

	repaired, err := warden.Repair(roomID)
	require.NoError(t, err)
	assert.False(t, repaired)

	_, err = warden.Repair("missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestResetPresence(t *testing.T) {
	f := newFixture(t)
	warden := NewHostWarden(f.store, f.clock.Now)
	roomID := f.createRoom(t, "A", publicSpec(4))
	_, err := f.join(t, roomID, "B", "")
	require.NoError(t, err)
	f.createRoom(t, "C", publicSpec(2))

	n, err := warden.ResetPresence()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	room := f.room(t, roomID)
	assert.Equal(t, domain.RoomStateEmpty, room.State())
	assert.Empty(t, room.HostID)
}

func TestHostInvariantHoldsAcrossJoinsAndLeaves(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "u0", publicSpec(10))
	handle := f.rooms.Handle(roomID)
	rng := rand.New(rand.NewSource(42))

	seated := map[string]bool{"u0": true}
	for step := 0; step < 300; step++ {
		uid := fmt.Sprintf("u%d", rng.Intn(12))
		f.clock.Advance(time.Duration(rng.Intn(3)) * time.Millisecond)
		if seated[uid] {
			require.NoError(t, handle.Leave(context.Background(), "conn-"+uid, uid))
			delete(seated, uid)
		} else {
			_, err := f.join(t, roomID, uid, "")
			if errors.Is(err, domain.ErrRoomFull) {
				continue
			}
			require.NoError(t, err)
			seated[uid] = true
		}
		room := f.room(t, roomID)
		require.Equal(t, len(seated), room.ParticipantCount())
		requireHostInvariant(t, room)
	}
}

func TestSelectAnime(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(4))
	_, err := f.join(t, roomID, "bob", "")
	require.NoError(t, err)
	handle := f.rooms.Handle(roomID)

	_, err = handle.SelectAnime(context.Background(), "bob", "frieren")
	assert.ErrorIs(t, err, domain.ErrNotHost)
	f.catalog.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)

	f.catalog.On("Resolve", mock.Anything, "frieren", 1).Return(domain.EpisodeSource{
		Title:         "Frieren",
		Poster:        "https://img/frieren.jpg",
		IframeSrc:     "https://player/frieren/1",
		TotalEpisodes: 28,
	}, nil).Once()

	_, err = handle.UpdateVideoState(context.Background(), "alice", domain.VideoPatch{CurrentTime: ptr(42.0), IsPlaying: ptr(true)})
	require.NoError(t, err)
	version := f.room(t, roomID).Version

	room, err := handle.SelectAnime(context.Background(), "alice", "frieren")
	require.NoError(t, err)
	require.NotNil(t, room.Anime)
	assert.Equal(t, "Frieren", room.Anime.Title)
	assert.Equal(t, 1, room.Anime.CurrentEpisode)
	assert.Equal(t, 28, room.Anime.TotalEpisodes)
	assert.Equal(t, "https://player/frieren/1", room.Anime.IframeSrc)
	assert.Equal(t, domain.VideoState{LastUpdated: f.clock.Now().UnixMilli(), UpdatedBy: "alice"}, room.VideoState)
	assert.Greater(t, room.Version, version)
	f.catalog.AssertExpectations(t)
}

func TestSelectAnimeCatalogMiss(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(2))
	f.catalog.On("Resolve", mock.Anything, "nope", 1).Return(domain.EpisodeSource{}, domain.ErrAnimeNotFound)

	_, err := f.rooms.Handle(roomID).SelectAnime(context.Background(), "alice", "nope")
	assert.ErrorIs(t, err, domain.ErrAnimeNotFound)
	assert.Nil(t, f.room(t, roomID).Anime)
}

func TestChangeEpisode(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(2))
	handle := f.rooms.Handle(roomID)
	ctx := context.Background()

	_, err := handle.ChangeEpisode(ctx, "alice", 2)
	assert.ErrorIs(t, err, domain.ErrInvalidEpisode, "no anime selected yet")

	f.catalog.On("Resolve", mock.Anything, "frieren", 1).Return(domain.EpisodeSource{Title: "Frieren", IframeSrc: "ep1", TotalEpisodes: 28}, nil)
	f.catalog.On("Resolve", mock.Anything, "frieren", 7).Return(domain.EpisodeSource{Title: "Frieren", IframeSrc: "ep7", TotalEpisodes: 28}, nil)
	_, err = handle.SelectAnime(ctx, "alice", "frieren")
	require.NoError(t, err)

	_, err = handle.ChangeEpisode(ctx, "alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidEpisode)
	_, err = handle.ChangeEpisode(ctx, "alice", 29)
	assert.ErrorIs(t, err, domain.ErrInvalidEpisode)

	room, err := handle.ChangeEpisode(ctx, "alice", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, room.Anime.CurrentEpisode)
	assert.Equal(t, "ep7", room.Anime.IframeSrc)
	assert.False(t, room.VideoState.IsPlaying)
	assert.Zero(t, room.VideoState.CurrentTime)
}

func TestUpdateVideoState(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(4))
	_, err := f.join(t, roomID, "bob", "")
	require.NoError(t, err)
	handle := f.rooms.Handle(roomID)
	ctx := context.Background()

	_, err = handle.UpdateVideoState(ctx, "bob", domain.VideoPatch{IsPlaying: ptr(true)})
	assert.ErrorIs(t, err, domain.ErrNotHost)

	_, err = handle.UpdateVideoState(ctx, "alice", domain.VideoPatch{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	f.clock.Advance(time.Second)
	room, err := handle.UpdateVideoState(ctx, "alice", domain.VideoPatch{CurrentTime: ptr(12.5)})
	require.NoError(t, err)
	assert.Equal(t, 12.5, room.VideoState.CurrentTime)
	assert.False(t, room.VideoState.IsPlaying)
	assert.Equal(t, f.clock.Now().UnixMilli(), room.VideoState.LastUpdated)

	stale := room.Version - 1
	_, err = handle.UpdateVideoState(ctx, "alice", domain.VideoPatch{IsPlaying: ptr(true), BaseVersion: &stale})
	assert.ErrorIs(t, err, domain.ErrStaleVersion)

	current := room.Version
	room, err = handle.UpdateVideoState(ctx, "alice", domain.VideoPatch{IsPlaying: ptr(true), BaseVersion: &current})
	require.NoError(t, err)
	assert.True(t, room.VideoState.IsPlaying)
	assert.Equal(t, 12.5, room.VideoState.CurrentTime)
	assert.Equal(t, current+1, room.Version)
}

func TestWatch(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, "alice", publicSpec(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := f.rooms.Handle(roomID).Watch(ctx)
	event := nextEvent(t, events)
	assert.False(t, event.Removed)
	assert.Equal(t, roomID, event.Room.ID)
	assert.Equal(t, 1, event.Room.ParticipantCount())

	_, err := f.join(t, roomID, "bob", "")
	require.NoError(t, err)
	event = nextEvent(t, events)
	assert.Equal(t, 2, event.Room.ParticipantCount())

	require.NoError(t, f.store.Remove(roomPath(roomID)))
	event = nextEvent(t, events)
	assert.True(t, event.Removed)

	_, ok := <-events
	assert.False(t, ok)
}

func nextEvent(t *testing.T, ch <-chan RoomEvent) RoomEvent {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "watch closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for room event")
		return RoomEvent{}
	}
}

func ptr[T any](v T) *T {
	return &v
}
