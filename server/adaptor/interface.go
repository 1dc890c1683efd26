package adaptor

import (
	"context"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

type Usecase interface {
	ListOpenRooms(ctx context.Context) <-chan []domain.RoomSummary
	HandleSession(ctx context.Context, requests <-chan domain.SessionRequest, responses chan<- domain.SessionResponse, connID string) error
}
