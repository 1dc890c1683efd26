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

// HostWarden keeps every room's host among its participants. Disconnect
// hooks only remove the participant entry; the warden elects the next host,
// or clears the host and starts the idle clock when the room emptied.
type HostWarden struct {
	store store.Store
	clock Clock
	log   *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHostWarden(s store.Store, clock Clock) *HostWarden {
	return &HostWarden{
		store: s,
		clock: clock,
		log:   logrus.WithField("component", "warden"),
	}
}

// Start watches the rooms subtree until ctx is done or Stop is called.
func (w *HostWarden) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	snapshots := w.store.Subscribe(ctx, roomsPath)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.Info("host warden started")
		for snap := range snapshots {
			for _, room := range decodeRooms(snap, w.log) {
				if !needsRepair(room) {
					continue
				}
				if _, err := w.Repair(room.ID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
					w.log.WithError(err).WithField("room_id", room.ID).Error("failed to repair host")
				}
			}
		}
		w.log.Info("host warden stopped")
	}()
}

func (w *HostWarden) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Repair restores the host invariants of one room. It reports whether the
// room was changed.
func (w *HostWarden) Repair(roomID string) (bool, error) {
	nowMs := w.clock.now().UnixMilli()
	repaired := false
	var host string
	_, err := w.store.Transaction(roomPath(roomID), roomTx(roomID, func(room *domain.Room) error {
		hadHost := room.HostID != ""
		if !room.NormalizeHost() {
			return store.SkipWrite
		}
		if room.ParticipantCount() == 0 && hadHost {
			room.LastActivity = nowMs
		}
		repaired = true
		host = room.HostID
		return nil
	}))
	if err != nil {
		return false, fmt.Errorf("failed to repair room %s: %w", roomID, err)
	}
	if repaired {
		w.log.WithFields(logrus.Fields{"room_id": roomID, "host": host}).Info("host repaired")
	}
	return repaired, nil
}

// ResetPresence empties every room. Seats belong to live connections, and
// none survive a restart.
func (w *HostWarden) ResetPresence() (int, error) {
	snap, err := w.store.Get(roomsPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read rooms: %w", err)
	}
	nowMs := w.clock.now().UnixMilli()
	reset := 0
	for _, room := range decodeRooms(snap, w.log) {
		if room.ParticipantCount() == 0 && room.HostID == "" {
			continue
		}
		_, err := w.store.Transaction(roomPath(room.ID), roomTx(room.ID, func(r *domain.Room) error {
			r.Participants = map[string]domain.Participant{}
			r.NormalizeHost()
			r.LastActivity = nowMs
			return nil
		}))
		if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			return reset, fmt.Errorf("failed to reset room %s: %w", room.ID, err)
		}
		reset++
	}
	return reset, nil
}

func needsRepair(room domain.Room) bool {
	if room.ParticipantCount() == 0 {
		return room.HostID != ""
	}
	if !room.HasParticipant(room.HostID) {
		return true
	}
	return room.HostCount() != 1 || !room.Participants[room.HostID].IsHost
}
