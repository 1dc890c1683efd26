package domain

import (
	"sort"
	"time"
)

const (
	// InactiveTimeout is how long a room may stay empty before it is reaped.
	InactiveTimeout = 5 * time.Minute

	// SweepInterval is how often the reaper looks for abandoned rooms.
	SweepInterval = 2 * time.Minute
)

type RoomState int

const (
	RoomStateUnknown RoomState = iota
	RoomStateActive
	RoomStateEmpty
)

func (s RoomState) String() string {
	switch s {
	case RoomStateActive:
		return "active"
	case RoomStateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Room is the shared record every participant of a watch-party observes.
// Timestamps are epoch milliseconds.
type Room struct {
	ID              string                 `json:"-"`
	Name            string                 `json:"name"`
	HostID          string                 `json:"hostId,omitempty"`
	HostName        string                 `json:"hostName,omitempty"`
	CreatedAt       int64                  `json:"createdAt"`
	IsPrivate       bool                   `json:"isPrivate"`
	Password        string                 `json:"password,omitempty"`
	MaxParticipants int                    `json:"maxParticipants"`
	Anime           *RoomAnime             `json:"anime,omitempty"`
	VideoState      VideoState             `json:"videoState"`
	Participants    map[string]Participant `json:"participants,omitempty"`
	Messages        map[string]ChatMessage `json:"messages,omitempty"`
	LastActivity    int64                  `json:"lastActivity,omitempty"`
	Version         int64                  `json:"version"`
}

type Participant struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
	IsHost      bool   `json:"isHost"`
}

// VideoState is the last playback position broadcast by the host.
type VideoState struct {
	CurrentTime float64 `json:"currentTime"`
	IsPlaying   bool    `json:"isPlaying"`
	LastUpdated int64   `json:"lastUpdated"`
	UpdatedBy   string  `json:"updatedBy,omitempty"`
}

type RoomAnime struct {
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Poster         string `json:"poster,omitempty"`
	CurrentEpisode int    `json:"currentEpisode"`
	TotalEpisodes  int    `json:"totalEpisodes"`
	IframeSrc      string `json:"iframeSrc"`
}

// EpisodeSource is what the catalog resolves for one episode of a title.
type EpisodeSource struct {
	Title         string `json:"title"`
	Poster        string `json:"poster"`
	IframeSrc     string `json:"iframeSrc"`
	TotalEpisodes int    `json:"totalEpisodes"`
}

// VideoPatch carries the fields a host changes. A non-nil BaseVersion turns
// the write into a compare-and-set against Room.Version.
type VideoPatch struct {
	CurrentTime *float64
	IsPlaying   *bool
	BaseVersion *int64
}

func (p VideoPatch) IsValid() bool {
	if p.CurrentTime == nil && p.IsPlaying == nil {
		return false
	}
	return p.CurrentTime == nil || *p.CurrentTime >= 0
}

func NewRoom(spec CreateRoomSpec, host Identity, now time.Time) Room {
	ms := now.UnixMilli()
	r := Room{
		Name:            spec.Name,
		HostID:          host.UID,
		HostName:        host.DisplayName,
		CreatedAt:       ms,
		IsPrivate:       spec.IsPrivate,
		MaxParticipants: spec.MaxParticipants,
		VideoState: VideoState{
			LastUpdated: ms,
			UpdatedBy:   host.UID,
		},
		Participants: map[string]Participant{
			host.UID: NewParticipant(host, now, true),
		},
		LastActivity: ms,
	}
	if spec.IsPrivate {
		r.Password = spec.Password
	}
	return r
}

func NewParticipant(id Identity, now time.Time, isHost bool) Participant {
	return Participant{
		UID:         id.UID,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		JoinedAt:    now.UnixMilli(),
		IsHost:      isHost,
	}
}

func (r Room) ParticipantCount() int {
	return len(r.Participants)
}

func (r Room) IsFull() bool {
	return r.ParticipantCount() >= r.MaxParticipants
}

func (r Room) HasParticipant(uid string) bool {
	_, ok := r.Participants[uid]
	return ok
}

func (r Room) IsHost(uid string) bool {
	return uid != "" && r.HostID == uid && r.HasParticipant(uid)
}

func (r Room) State() RoomState {
	if r.ParticipantCount() > 0 {
		return RoomStateActive
	}
	return RoomStateEmpty
}

// LastActive is lastActivity, falling back to createdAt for rooms that never
// recorded activity.
func (r Room) LastActive() int64 {
	if r.LastActivity > 0 {
		return r.LastActivity
	}
	return r.CreatedAt
}

// IsAbandoned reports whether the reaper may delete the room at now.
func (r Room) IsAbandoned(now time.Time, timeout time.Duration) bool {
	if r.ParticipantCount() > 0 {
		return false
	}
	return now.UnixMilli()-r.LastActive() > timeout.Milliseconds()
}

// ElectHost picks the longest-present participant; ties go to the smaller uid.
func (r Room) ElectHost() string {
	var (
		best   string
		bestAt int64
	)
	for uid, p := range r.Participants {
		if best == "" || p.JoinedAt < bestAt || (p.JoinedAt == bestAt && uid < best) {
			best, bestAt = uid, p.JoinedAt
		}
	}
	return best
}

// NormalizeHost restores the host invariants: an empty room has no host, a
// non-empty room has exactly one participant flagged isHost and it is
// HostID. It reports whether anything changed.
func (r *Room) NormalizeHost() bool {
	changed := false
	if len(r.Participants) == 0 {
		if r.HostID != "" || r.HostName != "" {
			r.HostID, r.HostName = "", ""
			changed = true
		}
		return changed
	}
	if !r.HasParticipant(r.HostID) {
		r.HostID = r.ElectHost()
		r.Version++
		changed = true
	}
	for uid, p := range r.Participants {
		isHost := uid == r.HostID
		if p.IsHost != isHost {
			p.IsHost = isHost
			r.Participants[uid] = p
			changed = true
		}
	}
	if name := r.Participants[r.HostID].DisplayName; r.HostName != name {
		r.HostName = name
		changed = true
	}
	return changed
}

// Redacted returns a copy that is safe to hand to clients.
func (r Room) Redacted() Room {
	r.Password = ""
	return r
}

// HostCount is the number of participants flagged isHost.
func (r Room) HostCount() int {
	n := 0
	for _, p := range r.Participants {
		if p.IsHost {
			n++
		}
	}
	return n
}

// SortedParticipants orders participants by join time.
func (r Room) SortedParticipants() []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].UID < out[j].UID
	})
	return out
}
