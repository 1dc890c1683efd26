package adaptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/hazavi/yumekai-sub000/grpc"
	"github.com/hazavi/yumekai-sub000/server/domain"
)

type Adaptor struct {
	uc  Usecase
	log *logrus.Entry
	pb.UnimplementedWatchPartyServer
}

func NewAdaptor(uc Usecase) *Adaptor {
	return &Adaptor{
		uc:  uc,
		log: logrus.WithField("component", "adaptor"),
	}
}

func (a *Adaptor) ListRooms(in *structpb.Struct, stream pb.WatchParty_ListRoomsServer) error {
	var req pb.RoomListRequest
	if err := pb.Decode(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	for summaries := range a.uc.ListOpenRooms(stream.Context()) {
		msg, err := toPbRoomList(summaries)
		if err != nil {
			a.log.WithError(err).Error("failed to encode room list")
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
		if req.Once {
			return nil
		}
	}
	return stream.Context().Err()
}

func (a *Adaptor) Session(stream pb.WatchParty_SessionServer) error {
	ctx := stream.Context()
	connID := uuid.NewString()
	entry := a.log.WithField("conn_id", connID)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		entry = entry.WithField("remote", p.Addr.String())
	}

	requests := make(chan domain.SessionRequest, 32)
	responses := make(chan domain.SessionResponse, 32)

	usecaseErr := make(chan error, 1)
	go func() {
		defer close(responses)
		usecaseErr <- a.uc.HandleSession(ctx, requests, responses, connID)
	}()

	sendErr := make(chan error, 1)
	go func() {
		var err error
		for response := range responses {
			if err != nil {
				continue
			}
			msg, encErr := toPbResponse(response)
			if encErr != nil {
				entry.WithError(encErr).Error("failed to encode response")
				continue
			}
			if sErr := stream.Send(msg); sErr != nil {
				err = fmt.Errorf("failed to send response: %w", sErr)
			}
		}
		sendErr <- err
	}()

	go func() {
		defer close(requests)
		for {
			in, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					entry.Info("client closed the session")
				} else if status.Code(err) != codes.Canceled {
					entry.WithError(err).Warn("client disconnected with error")
				}
				return
			}
			request, err := toDomainRequest(in)
			if err != nil {
				entry.WithError(err).Warn("failed to convert request")
			}
			select {
			case requests <- request:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := <-usecaseErr
	if sErr := <-sendErr; sErr != nil {
		entry.WithError(sErr).Warn("session stream broke")
		if err == nil {
			return sErr
		}
	}
	if err != nil {
		entry.WithError(err).Warn("session ended with error")
		return toStatus(err)
	}
	return nil
}

// toDomainRequest never fails hard: an unreadable message becomes an unknown
// request so the session can answer it with an error.
func toDomainRequest(in *structpb.Struct) (domain.SessionRequest, error) {
	var msg pb.ClientMessage
	if err := pb.Decode(in, &msg); err != nil {
		return domain.SessionRequest{}, err
	}

	request := domain.SessionRequest{
		ID:       msg.ID,
		Type:     domain.ParseSessionRequestType(msg.Op),
		RoomID:   msg.RoomID,
		Password: msg.Password,
		Slug:     msg.Slug,
		Episode:  msg.Episode,
		Message:  msg.Message,
	}
	switch request.Type {
	case domain.RequestHello:
		request.Identity = domain.NewIdentity(msg.UID, msg.DisplayName, msg.PhotoURL)
	case domain.RequestCreate:
		request.Spec = domain.CreateRoomSpec{
			Name:            msg.Name,
			IsPrivate:       msg.IsPrivate,
			Password:        msg.Password,
			MaxParticipants: msg.MaxParticipants,
		}
	case domain.RequestVideo:
		request.Video = domain.VideoPatch{
			CurrentTime: msg.CurrentTime,
			IsPlaying:   msg.IsPlaying,
			BaseVersion: msg.BaseVersion,
		}
	case domain.RequestChat:
		if msg.Timestamp > 0 {
			request.SentAt = time.UnixMilli(msg.Timestamp)
		}
	}
	return request, nil
}

func toPbResponse(response domain.SessionResponse) (*structpb.Struct, error) {
	msg := pb.ServerMessage{
		ID:     response.RequestID,
		RoomID: response.RoomID,
	}
	switch response.Type {
	case domain.ResponseAck:
		msg.Type = pb.TypeAck
	case domain.ResponseError:
		msg.Type = pb.TypeError
		msg.Code = domain.ErrorCode(response.Error)
		msg.Message = response.Error.Error()
	case domain.ResponseRoom:
		msg.Type = pb.TypeRoom
		if response.Room != nil {
			raw, err := json.Marshal(response.Room.Redacted())
			if err != nil {
				return nil, fmt.Errorf("failed to encode room %s: %w", response.RoomID, err)
			}
			msg.Room = raw
		}
	case domain.ResponseClosed:
		msg.Type = pb.TypeClosed
	default:
		return nil, fmt.Errorf("unknown response type %d", response.Type)
	}
	return pb.Encode(msg)
}

func toPbRoomList(summaries []domain.RoomSummary) (*structpb.Struct, error) {
	if summaries == nil {
		summaries = []domain.RoomSummary{}
	}
	raw, err := json.Marshal(summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode room list: %w", err)
	}
	return pb.Encode(pb.RoomList{Rooms: raw})
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch domain.ErrorCode(err) {
	case domain.CodeNotFound:
		code = codes.NotFound
	case domain.CodePermissionDenied:
		code = codes.PermissionDenied
	case domain.CodeRoomFull:
		code = codes.ResourceExhausted
	case domain.CodeStaleVersion:
		code = codes.Aborted
	case domain.CodeInvalidArgument:
		code = codes.InvalidArgument
	case domain.CodeFailedPrecondition:
		code = codes.FailedPrecondition
	case domain.CodeUnavailable:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
