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

// SessionUsecase runs the request loop of one connected client.
type SessionUsecase struct {
	store     store.Store
	directory *Directory
	rooms     *RoomSessions
	log       *logrus.Entry
}

func NewSessionUsecase(s store.Store, directory *Directory, rooms *RoomSessions) *SessionUsecase {
	return &SessionUsecase{
		store:     s,
		directory: directory,
		rooms:     rooms,
		log:       logrus.WithField("component", "session"),
	}
}

func (u *SessionUsecase) ListOpenRooms(ctx context.Context) <-chan []domain.RoomSummary {
	return u.directory.ListOpenRooms(ctx)
}

// session is the per-connection state. It is only touched by the request
// loop; the room watcher only sends responses.
type session struct {
	connID    string
	identity  domain.Identity
	room      *RoomHandle
	responses chan<- domain.SessionResponse

	stopWatch context.CancelFunc
	watchers  sync.WaitGroup
	log       *logrus.Entry
}

// HandleSession serves requests until the channel closes or ctx is done.
// The first request must be a hello. When the session ends the store drops
// the connection, which releases any seat it still holds.
func (u *SessionUsecase) HandleSession(
	ctx context.Context,
	requests <-chan domain.SessionRequest,
	responses chan<- domain.SessionResponse,
	connID string,
) error {
	if err := u.store.Connect(connID); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	s := &session{
		connID:    connID,
		responses: responses,
		log:       u.log.WithField("conn_id", connID),
	}
	defer func() {
		s.unwatch()
		if err := u.store.Disconnect(connID); err != nil {
			s.log.WithError(err).Error("failed to disconnect")
		}
		s.log.Info("session ended")
	}()

	var initialized bool
	for {
		var request domain.SessionRequest
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case request, ok = <-requests:
			if !ok {
				return nil
			}
		}

		if !initialized {
			if err := u.handleHello(s, request); err != nil {
				s.send(ctx, domain.NewSessionError(request.ID, err))
				return err
			}
			initialized = true
			s.send(ctx, domain.NewAck(request.ID, ""))
			continue
		}

		roomID, err := u.handleRequest(ctx, s, request)
		if err != nil {
			s.log.WithError(err).WithField("request", request.String()).Warn("request failed")
			s.send(ctx, domain.NewSessionError(request.ID, err))
			continue
		}
		s.send(ctx, domain.NewAck(request.ID, roomID))
	}
}

func (u *SessionUsecase) handleHello(s *session, request domain.SessionRequest) error {
	if request.Type != domain.RequestHello {
		return fmt.Errorf("%w: expected hello, got %s", domain.ErrInvalidRequest, request.Type)
	}
	if !request.IsValid() {
		return fmt.Errorf("%w: hello without uid", domain.ErrInvalidRequest)
	}
	s.identity = domain.NewIdentity(request.Identity.UID, request.Identity.DisplayName, request.Identity.PhotoURL)
	s.log = s.log.WithField("uid", s.identity.UID)
	s.log.Info("session started")
	return nil
}

// handleRequest runs one command and returns the room it concerns.
func (u *SessionUsecase) handleRequest(ctx context.Context, s *session, request domain.SessionRequest) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}

	switch request.Type {
	case domain.RequestCreate:
		if err := u.leaveCurrent(ctx, s, ""); err != nil {
			return "", err
		}
		roomID, err := u.directory.CreateRoom(ctx, s.connID, s.identity, request.Spec)
		if err != nil {
			return "", err
		}
		u.enter(ctx, s, u.rooms.Handle(roomID))
		return roomID, nil

	case domain.RequestJoin:
		if err := u.leaveCurrent(ctx, s, request.RoomID); err != nil {
			return "", err
		}
		handle := u.rooms.Handle(request.RoomID)
		if _, err := handle.Join(ctx, s.connID, s.identity, request.Password); err != nil {
			return "", err
		}
		if s.room != handle {
			u.enter(ctx, s, handle)
		}
		return handle.ID(), nil

	case domain.RequestLeave:
		if s.room == nil {
			return "", domain.ErrNotJoined
		}
		roomID := s.room.ID()
		return roomID, u.leaveCurrent(ctx, s, "")

	case domain.RequestHello:
		return "", fmt.Errorf("%w: session already started", domain.ErrInvalidRequest)
	}

	if s.room == nil {
		return "", domain.ErrNotJoined
	}
	roomID := s.room.ID()
	var err error
	switch request.Type {
	case domain.RequestSelectAnime:
		_, err = s.room.SelectAnime(ctx, s.identity.UID, request.Slug)
	case domain.RequestChangeEpisode:
		_, err = s.room.ChangeEpisode(ctx, s.identity.UID, request.Episode)
	case domain.RequestVideo:
		_, err = s.room.UpdateVideoState(ctx, s.identity.UID, request.Video)
	case domain.RequestChat:
		_, err = s.room.SendMessage(ctx, s.identity.UID, request.Message, request.SentAt)
	default:
		err = fmt.Errorf("%w: unknown request", domain.ErrInvalidRequest)
	}
	return roomID, err
}

// leaveCurrent leaves the session's room unless it is keepID.
func (u *SessionUsecase) leaveCurrent(ctx context.Context, s *session, keepID string) error {
	if s.room == nil || s.room.ID() == keepID {
		return nil
	}
	err := s.room.Leave(ctx, s.connID, s.identity.UID)
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) && !errors.Is(err, domain.ErrNotParticipant) {
		return err
	}
	s.unwatch()
	s.room = nil
	return nil
}

// enter makes handle the session's room and streams its snapshots to the
// client.
func (u *SessionUsecase) enter(ctx context.Context, s *session, handle *RoomHandle) {
	s.unwatch()
	s.room = handle

	watchCtx, cancel := context.WithCancel(ctx)
	s.stopWatch = cancel
	events := handle.Watch(watchCtx)
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		for event := range events {
			if event.Removed {
				s.send(watchCtx, domain.NewClosedResponse(handle.ID()))
				return
			}
			s.send(watchCtx, domain.NewRoomResponse(event.Room))
		}
	}()
}

func (s *session) unwatch() {
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	s.watchers.Wait()
}

func (s *session) send(ctx context.Context, response domain.SessionResponse) {
	select {
	case s.responses <- response:
	case <-ctx.Done():
	}
}
