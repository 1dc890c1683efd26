package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hazavi/yumekai-sub000/server/domain"
	"github.com/hazavi/yumekai-sub000/server/store"
)

// RoomEvent is one observed state of a room. Removed means the record is
// gone and no further events follow.
type RoomEvent struct {
	Room    domain.Room
	Removed bool
}

// RoomSessions owns one RoomHandle per room. Every mutation of a room goes
// through its handle.
type RoomSessions struct {
	store   store.Store
	catalog Catalog
	clock   Clock
	log     *logrus.Entry

	mu      sync.Mutex
	handles map[string]*RoomHandle
}

func NewRoomSessions(s store.Store, catalog Catalog, clock Clock) *RoomSessions {
	return &RoomSessions{
		store:   s,
		catalog: catalog,
		clock:   clock,
		log:     logrus.WithField("component", "room"),
		handles: make(map[string]*RoomHandle),
	}
}

func (s *RoomSessions) Handle(roomID string) *RoomHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, exists := s.handles[roomID]
	if !exists {
		h = &RoomHandle{
			id:       roomID,
			sessions: s,
			log:      s.log.WithField("room_id", roomID),
		}
		s.handles[roomID] = h
	}
	return h
}

// Forget drops the handle of a room that no longer exists.
func (s *RoomSessions) Forget(roomID string) {
	s.mu.Lock()
	delete(s.handles, roomID)
	s.mu.Unlock()
}

func (s *RoomSessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

type RoomHandle struct {
	id       string
	sessions *RoomSessions
	log      *logrus.Entry
}

func (h *RoomHandle) ID() string {
	return h.id
}

func (h *RoomHandle) Get(ctx context.Context) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	snap, err := h.sessions.store.Get(roomPath(h.id))
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to read room %s: %w", h.id, err)
	}
	return decodeRoom(h.id, snap.Value)
}

// Join seats identity in the room and ties the seat to connID. Joining a room
// the caller already sits in changes nothing.
func (h *RoomHandle) Join(ctx context.Context, connID string, identity domain.Identity, password string) (domain.Room, error) {
	if !identity.IsValid() {
		return domain.Room{}, fmt.Errorf("%w: invalid identity", domain.ErrInvalidRequest)
	}
	if !domain.IsValidKey(h.id) {
		return domain.Room{}, fmt.Errorf("failed to join room %q: %w", h.id, domain.ErrRoomNotFound)
	}
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}

	now := h.sessions.clock.now()
	added := false
	snap, err := h.sessions.store.Transaction(roomPath(h.id), func(current any) (any, error) {
		room, err := decodeRoom(h.id, current)
		if err != nil {
			return nil, err
		}
		if room.IsPrivate && room.Password != password {
			return nil, domain.ErrWrongPassword
		}
		if room.HasParticipant(identity.UID) {
			return nil, store.SkipWrite
		}
		if room.IsFull() {
			return nil, domain.ErrRoomFull
		}
		room.Participants[identity.UID] = domain.NewParticipant(identity, now, false)
		room.NormalizeHost()
		room.LastActivity = now.UnixMilli()
		added = true
		return room, nil
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to join room %s: %w", h.id, err)
	}

	if err := h.sessions.store.OnDisconnectRemove(connID, participantPath(h.id, identity.UID)); err != nil {
		if added {
			h.rollbackJoin(identity.UID)
		}
		return domain.Room{}, presenceError(err)
	}

	room, err := decodeRoom(h.id, snap.Value)
	if err != nil {
		return domain.Room{}, err
	}
	if added {
		h.log.WithFields(logrus.Fields{
			"uid":          identity.UID,
			"host":         room.HostID == identity.UID,
			"participants": room.ParticipantCount(),
		}).Info("participant joined")
	}
	return room, nil
}

func (h *RoomHandle) rollbackJoin(uid string) {
	nowMs := h.sessions.clock.now().UnixMilli()
	_, err := h.sessions.store.Transaction(roomPath(h.id), roomTx(h.id, func(room *domain.Room) error {
		if !room.HasParticipant(uid) {
			return store.SkipWrite
		}
		removeParticipant(room, uid, nowMs)
		return nil
	}))
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		h.log.WithError(err).WithField("uid", uid).Error("failed to roll back join")
	}
}

// Leave releases uid's seat. The disconnect hook is cancelled first so a
// dropped connection cannot remove a seat taken again later.
func (h *RoomHandle) Leave(ctx context.Context, connID, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := h.sessions.store.CancelOnDisconnect(connID, participantPath(h.id, uid))
	if err != nil && !errors.Is(err, store.ErrNotConnected) {
		return fmt.Errorf("failed to cancel disconnect hook: %w", err)
	}

	nowMs := h.sessions.clock.now().UnixMilli()
	var remaining int
	var newHost string
	_, err = h.sessions.store.Transaction(roomPath(h.id), roomTx(h.id, func(room *domain.Room) error {
		if !room.HasParticipant(uid) {
			return domain.ErrNotParticipant
		}
		removeParticipant(room, uid, nowMs)
		remaining = room.ParticipantCount()
		newHost = room.HostID
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to leave room %s: %w", h.id, err)
	}

	h.log.WithFields(logrus.Fields{
		"uid":          uid,
		"participants": remaining,
		"host":         newHost,
	}).Info("participant left")
	return nil
}

// SelectAnime loads the first episode of slug and rewinds playback.
func (h *RoomHandle) SelectAnime(ctx context.Context, uid, slug string) (domain.Room, error) {
	if slug == "" {
		return domain.Room{}, fmt.Errorf("%w: missing anime slug", domain.ErrInvalidRequest)
	}
	if _, err := h.requireHost(ctx, uid); err != nil {
		return domain.Room{}, err
	}
	source, err := h.sessions.catalog.Resolve(ctx, slug, 1)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to resolve %s: %w", slug, err)
	}
	return h.setEpisode(uid, slug, 1, source, "")
}

// ChangeEpisode switches the selected anime to episode n and rewinds
// playback.
func (h *RoomHandle) ChangeEpisode(ctx context.Context, uid string, n int) (domain.Room, error) {
	room, err := h.requireHost(ctx, uid)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Anime == nil {
		return domain.Room{}, fmt.Errorf("%w: no anime selected", domain.ErrInvalidEpisode)
	}
	if n < 1 || (room.Anime.TotalEpisodes > 0 && n > room.Anime.TotalEpisodes) {
		return domain.Room{}, fmt.Errorf("%w: %d is outside 1..%d", domain.ErrInvalidEpisode, n, room.Anime.TotalEpisodes)
	}
	slug := room.Anime.Slug
	source, err := h.sessions.catalog.Resolve(ctx, slug, n)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to resolve %s episode %d: %w", slug, n, err)
	}
	return h.setEpisode(uid, slug, n, source, slug)
}

// setEpisode writes the anime and the rewound video state together. A
// non-empty expectSlug guards against the anime changing while the catalog
// was queried.
func (h *RoomHandle) setEpisode(uid, slug string, episode int, source domain.EpisodeSource, expectSlug string) (domain.Room, error) {
	now := h.sessions.clock.now().UnixMilli()
	snap, err := h.sessions.store.Transaction(roomPath(h.id), roomTx(h.id, func(room *domain.Room) error {
		if !room.IsHost(uid) {
			return domain.ErrNotHost
		}
		if expectSlug != "" && (room.Anime == nil || room.Anime.Slug != expectSlug) {
			return domain.ErrStaleVersion
		}
		if source.TotalEpisodes > 0 && episode > source.TotalEpisodes {
			return fmt.Errorf("%w: %d is outside 1..%d", domain.ErrInvalidEpisode, episode, source.TotalEpisodes)
		}
		room.Anime = &domain.RoomAnime{
			Slug:           slug,
			Title:          source.Title,
			Poster:         source.Poster,
			CurrentEpisode: episode,
			TotalEpisodes:  source.TotalEpisodes,
			IframeSrc:      source.IframeSrc,
		}
		room.VideoState = domain.VideoState{
			CurrentTime: 0,
			IsPlaying:   false,
			LastUpdated: now,
			UpdatedBy:   room.HostID,
		}
		room.LastActivity = now
		room.Version++
		return nil
	}))
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to set episode in room %s: %w", h.id, err)
	}

	h.log.WithFields(logrus.Fields{"slug": slug, "episode": episode}).Info("episode selected")
	return decodeRoom(h.id, snap.Value)
}

// UpdateVideoState applies the host's playback change. Without a base
// version the last write wins.
func (h *RoomHandle) UpdateVideoState(ctx context.Context, uid string, patch domain.VideoPatch) (domain.Room, error) {
	if !patch.IsValid() {
		return domain.Room{}, fmt.Errorf("%w: empty or negative video update", domain.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}

	now := h.sessions.clock.now().UnixMilli()
	snap, err := h.sessions.store.Transaction(roomPath(h.id), roomTx(h.id, func(room *domain.Room) error {
		if !room.IsHost(uid) {
			return domain.ErrNotHost
		}
		if patch.BaseVersion != nil && *patch.BaseVersion != room.Version {
			return domain.ErrStaleVersion
		}
		if patch.CurrentTime != nil {
			room.VideoState.CurrentTime = *patch.CurrentTime
		}
		if patch.IsPlaying != nil {
			room.VideoState.IsPlaying = *patch.IsPlaying
		}
		room.VideoState.LastUpdated = now
		room.VideoState.UpdatedBy = uid
		room.LastActivity = now
		room.Version++
		return nil
	}))
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to update video in room %s: %w", h.id, err)
	}
	return decodeRoom(h.id, snap.Value)
}

// Watch streams the room as it changes, starting with its current state.
func (h *RoomHandle) Watch(ctx context.Context) <-chan RoomEvent {
	out := make(chan RoomEvent)
	subCtx, cancel := context.WithCancel(ctx)
	snapshots := h.sessions.store.Subscribe(subCtx, roomPath(h.id))
	go func() {
		defer close(out)
		defer cancel()
		for snap := range snapshots {
			event := RoomEvent{Removed: !snap.Exists()}
			if !event.Removed {
				room, err := decodeRoom(h.id, snap.Value)
				if err != nil {
					h.log.WithError(err).Warn("skipping unreadable room snapshot")
					continue
				}
				event.Room = room
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
			if event.Removed {
				return
			}
		}
	}()
	return out
}

func (h *RoomHandle) requireHost(ctx context.Context, uid string) (domain.Room, error) {
	room, err := h.Get(ctx)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.IsHost(uid) {
		return domain.Room{}, domain.ErrNotHost
	}
	return room, nil
}
