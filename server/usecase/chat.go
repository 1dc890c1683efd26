package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

// SendMessage appends a chat line from uid. sentAt is the sender's clock;
// the zero time is replaced by the server's.
func (h *RoomHandle) SendMessage(ctx context.Context, uid, text string, sentAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := h.sessions.clock.now()
	if sentAt.IsZero() {
		sentAt = now
	}

	// The activity stamp keeps the reaper away until the message is written.
	var msg domain.ChatMessage
	_, err := h.sessions.store.Transaction(roomPath(h.id), roomTx(h.id, func(room *domain.Room) error {
		sender, ok := room.Participants[uid]
		if !ok {
			return domain.ErrNotParticipant
		}
		m, err := domain.NewChatMessage(sender, text, sentAt)
		if err != nil {
			return err
		}
		msg = m
		room.LastActivity = now.UnixMilli()
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("failed to send message to room %s: %w", h.id, err)
	}

	key, err := h.sessions.store.Push(messagesPath(h.id), msg)
	if err != nil {
		return "", fmt.Errorf("failed to save message in room %s: %w", h.id, err)
	}
	h.log.WithFields(logrus.Fields{"uid": uid, "message_id": key}).Debug("message sent")
	return key, nil
}
