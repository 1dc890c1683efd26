package domain

import "sort"

// RoomSummary is the directory view of a room.
type RoomSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	HostName         string `json:"hostName"`
	IsPrivate        bool   `json:"isPrivate"`
	MaxParticipants  int    `json:"maxParticipants"`
	ParticipantCount int    `json:"participantCount"`
	CreatedAt        int64  `json:"createdAt"`
	AnimeTitle       string `json:"animeTitle,omitempty"`
}

func (r Room) Summary() RoomSummary {
	s := RoomSummary{
		ID:               r.ID,
		Name:             r.Name,
		HostName:         r.HostName,
		IsPrivate:        r.IsPrivate,
		MaxParticipants:  r.MaxParticipants,
		ParticipantCount: r.ParticipantCount(),
		CreatedAt:        r.CreatedAt,
	}
	if r.Anime != nil {
		s.AnimeTitle = r.Anime.Title
	}
	return s
}

// OpenRooms keeps the rooms that still have a free seat, newest first.
func OpenRooms(rooms []Room) []RoomSummary {
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		if r.IsFull() {
			continue
		}
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}
