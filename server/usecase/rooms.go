package usecase

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hazavi/yumekai-sub000/server/domain"
	"github.com/hazavi/yumekai-sub000/server/store"
)

var roomsPath = store.NewPath("rooms")

func roomPath(roomID string) store.Path {
	return roomsPath.Append(roomID)
}

func participantPath(roomID, uid string) store.Path {
	return roomsPath.Append(roomID, "participants", uid)
}

func messagesPath(roomID string) store.Path {
	return roomsPath.Append(roomID, "messages")
}

// decodeRoom turns the value stored at rooms/{id} into a Room. A missing
// value is ErrRoomNotFound.
func decodeRoom(roomID string, value any) (domain.Room, error) {
	if value == nil {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	var room domain.Room
	if err := (store.Snapshot{Value: value}).Decode(&room); err != nil {
		return domain.Room{}, fmt.Errorf("failed to decode room %s: %w", roomID, err)
	}
	room.ID = roomID
	if room.Participants == nil {
		room.Participants = make(map[string]domain.Participant)
	}
	for uid, p := range room.Participants {
		if p.UID == "" {
			p.UID = uid
			room.Participants[uid] = p
		}
	}
	return room, nil
}

// decodeRooms decodes every child of a rooms snapshot, skipping records
// that cannot be read.
func decodeRooms(snap store.Snapshot, log *logrus.Entry) []domain.Room {
	children := snap.Children()
	rooms := make([]domain.Room, 0, len(children))
	for id, child := range children {
		room, err := decodeRoom(id, child.Value)
		if err != nil {
			log.WithError(err).WithField("room_id", id).Warn("skipping unreadable room")
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms
}

// roomTx adapts a function over a decoded Room into a store transaction.
func roomTx(roomID string, fn func(room *domain.Room) error) store.TxFunc {
	return func(current any) (any, error) {
		room, err := decodeRoom(roomID, current)
		if err != nil {
			return nil, err
		}
		if err := fn(&room); err != nil {
			return nil, err
		}
		return room, nil
	}
}

// removeParticipant deletes uid from the room and restores the host
// invariants. An emptied room keeps its record and starts its idle clock.
func removeParticipant(room *domain.Room, uid string, nowMs int64) {
	delete(room.Participants, uid)
	room.NormalizeHost()
	if room.ParticipantCount() == 0 {
		room.LastActivity = nowMs
	}
}
