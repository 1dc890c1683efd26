package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hazavi/yumekai-sub000/server/domain"
	"github.com/hazavi/yumekai-sub000/server/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Resolve(ctx context.Context, slug string, episode int) (domain.EpisodeSource, error) {
	args := m.Called(ctx, slug, episode)
	return args.Get(0).(domain.EpisodeSource), args.Error(1)
}

type fixture struct {
	store     *store.Memory
	clock     *fakeClock
	catalog   *mockCatalog
	directory *Directory
	rooms     *RoomSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(nil),
		clock:   newFakeClock(),
		catalog: &mockCatalog{},
	}
	f.directory = NewDirectory(f.store, f.clock.Now)
	f.rooms = NewRoomSessions(f.store, f.catalog, f.clock.Now)
	return f
}

func (f *fixture) connect(t *testing.T, connIDs ...string) {
	t.Helper()
	for _, id := range connIDs {
		require.NoError(t, f.store.Connect(id))
	}
}

// createRoom creates a room hosted by uid over connection "conn-"+uid.
func (f *fixture) createRoom(t *testing.T, uid string, spec domain.CreateRoomSpec) string {
	t.Helper()
	f.connect(t, "conn-"+uid)
	roomID, err := f.directory.CreateRoom(context.Background(), "conn-"+uid, domain.NewIdentity(uid, "", ""), spec)
	require.NoError(t, err)
	return roomID
}

func (f *fixture) join(t *testing.T, roomID, uid, password string) (domain.Room, error) {
	t.Helper()
	f.connect(t, "conn-"+uid)
	return f.rooms.Handle(roomID).Join(context.Background(), "conn-"+uid, domain.NewIdentity(uid, "", ""), password)
}

func (f *fixture) room(t *testing.T, roomID string) domain.Room {
	t.Helper()
	room, err := f.rooms.Handle(roomID).Get(context.Background())
	require.NoError(t, err)
	return room
}

func publicSpec(max int) domain.CreateRoomSpec {
	return domain.CreateRoomSpec{Name: "movie night", MaxParticipants: max}
}

func requireHostInvariant(t *testing.T, room domain.Room) {
	t.Helper()
	if room.ParticipantCount() == 0 {
		require.Empty(t, room.HostID)
		return
	}
	require.Equal(t, 1, room.HostCount())
	require.True(t, room.HasParticipant(room.HostID))
	require.True(t, room.Participants[room.HostID].IsHost)
}
