// Package client wraps the WatchParty gRPC service for the CLI.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/hazavi/yumekai-sub000/grpc"
	"github.com/hazavi/yumekai-sub000/server/domain"
)

var ErrSessionClosed = errors.New("session closed")

// RemoteError is an in-band error reply from the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Client struct {
	conn *grpc.ClientConn
	api  pb.WatchPartyClient
}

func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("did not connect to gRPC server: %w", err)
	}
	return NewClient(conn), nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, api: pb.NewWatchPartyClient(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// WatchRooms calls fn with every open-room list the server sends. With once
// set the server sends a single list and WatchRooms returns after it.
func (c *Client) WatchRooms(ctx context.Context, once bool, fn func([]domain.RoomSummary) error) error {
	req, err := pb.Encode(pb.RoomListRequest{Once: once})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.api.ListRooms(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	for {
		out, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to receive room list: %w", err)
		}
		var list pb.RoomList
		if err := pb.Decode(out, &list); err != nil {
			return err
		}
		var summaries []domain.RoomSummary
		if err := json.Unmarshal(list.Rooms, &summaries); err != nil {
			return fmt.Errorf("failed to decode room list: %w", err)
		}
		if err := fn(summaries); err != nil {
			return err
		}
	}
}

// Event is a room snapshot pushed by the server. Closed reports that the
// room was deleted or the caller's seat was taken away.
type Event struct {
	RoomID string
	Room   *domain.Room
	Closed bool
}

// Session is one open Session stream. Requests may be issued from several
// goroutines; replies are matched by request id.
type Session struct {
	stream pb.WatchParty_SessionClient
	cancel context.CancelFunc
	seq    atomic.Uint64

	sendMu  sync.Mutex
	mu      sync.Mutex
	pending map[string]chan pb.ServerMessage

	events chan Event
	done   chan struct{}
	err    error
}

// OpenSession opens a stream and introduces the caller.
func (c *Client) OpenSession(ctx context.Context, id domain.Identity) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.api.Session(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	s := &Session{
		stream:  stream,
		cancel:  cancel,
		pending: make(map[string]chan pb.ServerMessage),
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}
	go s.recvLoop()

	_, err = s.do(ctx, pb.ClientMessage{
		Op:          pb.OpHello,
		UID:         id.UID,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Events delivers room snapshots. Only the latest snapshots are kept when
// the reader falls behind. The channel closes with the session.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Err is the reason the stream ended, once Events is closed.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

func (s *Session) Close() error {
	err := s.stream.CloseSend()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
	}
	s.cancel()
	return err
}

func (s *Session) Create(ctx context.Context, spec domain.CreateRoomSpec) (string, error) {
	reply, err := s.do(ctx, pb.ClientMessage{
		Op:              pb.OpCreate,
		Name:            spec.Name,
		IsPrivate:       spec.IsPrivate,
		Password:        spec.Password,
		MaxParticipants: spec.MaxParticipants,
	})
	if err != nil {
		return "", err
	}
	return reply.RoomID, nil
}

func (s *Session) Join(ctx context.Context, roomID, password string) error {
	_, err := s.do(ctx, pb.ClientMessage{Op: pb.OpJoin, RoomID: roomID, Password: password})
	return err
}

func (s *Session) Leave(ctx context.Context) error {
	_, err := s.do(ctx, pb.ClientMessage{Op: pb.OpLeave})
	return err
}

func (s *Session) SelectAnime(ctx context.Context, slug string) error {
	_, err := s.do(ctx, pb.ClientMessage{Op: pb.OpSelectAnime, Slug: slug})
	return err
}

func (s *Session) ChangeEpisode(ctx context.Context, episode int) error {
	_, err := s.do(ctx, pb.ClientMessage{Op: pb.OpChangeEpisode, Episode: episode})
	return err
}

// UpdateVideo sends a playback change. Nil fields are left untouched.
func (s *Session) UpdateVideo(ctx context.Context, currentTime *float64, isPlaying *bool) error {
	_, err := s.do(ctx, pb.ClientMessage{Op: pb.OpVideo, CurrentTime: currentTime, IsPlaying: isPlaying})
	return err
}

func (s *Session) Chat(ctx context.Context, text string) error {
	_, err := s.do(ctx, pb.ClientMessage{
		Op:        pb.OpChat,
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
	})
	return err
}

func (s *Session) do(ctx context.Context, msg pb.ClientMessage) (pb.ServerMessage, error) {
	msg.ID = strconv.FormatUint(s.seq.Add(1), 10)
	reply := make(chan pb.ServerMessage, 1)
	s.mu.Lock()
	s.pending[msg.ID] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	in, err := pb.Encode(msg)
	if err != nil {
		return pb.ServerMessage{}, err
	}
	s.sendMu.Lock()
	err = s.stream.Send(in)
	s.sendMu.Unlock()
	if err != nil {
		return pb.ServerMessage{}, fmt.Errorf("failed to send %s: %w", msg.Op, err)
	}

	select {
	case out := <-reply:
		if out.Type == pb.TypeError {
			return out, &RemoteError{Code: out.Code, Message: out.Message}
		}
		return out, nil
	case <-s.done:
		if s.err != nil {
			return pb.ServerMessage{}, s.err
		}
		return pb.ServerMessage{}, ErrSessionClosed
	case <-ctx.Done():
		return pb.ServerMessage{}, ctx.Err()
	}
}

func (s *Session) recvLoop() {
	defer close(s.events)
	defer close(s.done)
	for {
		out, err := s.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return
		}
		var msg pb.ServerMessage
		if err := pb.Decode(out, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case pb.TypeAck, pb.TypeError:
			s.mu.Lock()
			reply, ok := s.pending[msg.ID]
			s.mu.Unlock()
			if ok {
				reply <- msg
			}
		case pb.TypeRoom:
			var room domain.Room
			if err := json.Unmarshal(msg.Room, &room); err != nil {
				continue
			}
			room.ID = msg.RoomID
			s.emit(Event{RoomID: msg.RoomID, Room: &room})
		case pb.TypeClosed:
			s.emit(Event{RoomID: msg.RoomID, Closed: true})
		}
	}
}

// emit drops the oldest buffered event when the reader is slow. Snapshots
// carry the full room, so only the newest matters.
func (s *Session) emit(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
