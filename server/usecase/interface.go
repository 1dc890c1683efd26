package usecase

import (
	"context"
	"time"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

// Catalog resolves the playable source of one episode.
type Catalog interface {
	Resolve(ctx context.Context, slug string, episode int) (domain.EpisodeSource, error)
}

// Clock returns the current time. Tests substitute a fixed one.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
