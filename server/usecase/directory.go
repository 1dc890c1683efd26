package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hazavi/yumekai-sub000/server/domain"
	"github.com/hazavi/yumekai-sub000/server/store"
)

// Directory lists joinable rooms and creates new ones.
type Directory struct {
	store store.Store
	clock Clock
	log   *logrus.Entry
}

func NewDirectory(s store.Store, clock Clock) *Directory {
	return &Directory{
		store: s,
		clock: clock,
		log:   logrus.WithField("component", "directory"),
	}
}

// CreateRoom stores a new room with host as its only participant and ties
// the host's seat to connID.
func (d *Directory) CreateRoom(ctx context.Context, connID string, host domain.Identity, spec domain.CreateRoomSpec) (string, error) {
	if !host.IsValid() {
		return "", fmt.Errorf("%w: invalid identity", domain.ErrInvalidRequest)
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	room := domain.NewRoom(spec.Normalized(), host, d.clock.now())
	roomID, err := d.store.Push(roomsPath, room)
	if err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}

	if err := d.store.OnDisconnectRemove(connID, participantPath(roomID, host.UID)); err != nil {
		if rmErr := d.store.Remove(roomPath(roomID)); rmErr != nil {
			d.log.WithError(rmErr).WithField("room_id", roomID).Error("failed to roll back room")
		}
		return "", presenceError(err)
	}

	d.log.WithFields(logrus.Fields{
		"room_id":          roomID,
		"host":             host.UID,
		"private":          spec.IsPrivate,
		"max_participants": spec.MaxParticipants,
	}).Info("room created")
	return roomID, nil
}

// ListOpenRooms streams the rooms that still have a free seat, newest first.
// The channel closes when ctx is done.
func (d *Directory) ListOpenRooms(ctx context.Context) <-chan []domain.RoomSummary {
	out := make(chan []domain.RoomSummary)
	snapshots := d.store.Subscribe(ctx, roomsPath)
	go func() {
		defer close(out)
		for snap := range snapshots {
			summaries := domain.OpenRooms(decodeRooms(snap, d.log))
			select {
			case out <- summaries:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func presenceError(err error) error {
	if errors.Is(err, store.ErrNotConnected) {
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	return fmt.Errorf("failed to register disconnect hook: %w", err)
}
