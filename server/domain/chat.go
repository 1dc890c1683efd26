package domain

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxMessageLength = 500

type ChatMessage struct {
	ID          string `json:"-"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
}

// NewChatMessage builds a message from the sender's text. sentAt is the
// sender's wall clock.
func NewChatMessage(sender Participant, text string, sentAt time.Time) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return ChatMessage{}, ErrMessageTooLong
	}
	return ChatMessage{
		UID:         sender.UID,
		DisplayName: sender.DisplayName,
		PhotoURL:    sender.PhotoURL,
		Message:     text,
		Timestamp:   sentAt.UnixMilli(),
	}, nil
}

// OrderedMessages lists the chat in arrival order. Push keys sort in the
// order the store accepted them, so sender clock skew cannot reorder them.
func (r Room) OrderedMessages() []ChatMessage {
	out := make([]ChatMessage, 0, len(r.Messages))
	for id, m := range r.Messages {
		m.ID = id
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MessagesAfter returns the messages that arrived after the one with key
// lastID ("" returns all of them).
func (r Room) MessagesAfter(lastID string) []ChatMessage {
	all := r.OrderedMessages()
	i := sort.Search(len(all), func(i int) bool { return all[i].ID > lastID })
	return all[i:]
}

// UnreadCounter tracks how many messages one client has not looked at yet.
type UnreadCounter struct {
	seen    int
	current int
}

func (c *UnreadCounter) Observe(total int) {
	c.current = total
	if c.seen > total {
		c.seen = total
	}
}

func (c *UnreadCounter) MarkSeen() {
	c.seen = c.current
}

func (c *UnreadCounter) Unread() int {
	return c.current - c.seen
}
