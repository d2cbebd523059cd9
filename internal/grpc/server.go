package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

// Dispatch action names.
const (
	ActionSetFilters      = "setFilters"
	ActionToggleQueue     = "toggleQueue"
	ActionMoveQueue       = "moveQueue"
	ActionClearQueue      = "clearQueue"
	ActionMarkDrafted     = "markDrafted"
	ActionSetMySlot       = "setMySlot"
	ActionSetCurrentPick  = "setCurrentPick"
	ActionNextPick        = "nextPick"
	ActionSetDense        = "setDense"
	ActionReset           = "reset"
	ActionImportOverrides = "importOverrides"
	ActionReload          = "reload"
)

// EventBus is what StreamEvents subscribes to.
type EventBus interface {
	Subscribe() chan pubsub.Event
	Unsubscribe(ch chan pubsub.Event)
}

// Server implements the gRPC DraftService
type Server struct {
	store  *store.Store
	bus    EventBus
	reload func(ctx context.Context) error
}

// NewServer creates a new gRPC server. reload may be nil.
func NewServer(s *store.Store, bus EventBus, reload func(ctx context.Context) error) *Server {
	return &Server{store: s, bus: bus, reload: reload}
}

// NewGRPCServer builds a grpc.Server with tracing, DraftService and the
// standard health service registered.
func NewGRPCServer(svc *Server) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterDraftServiceServer(gs, svc)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return gs, hs
}

// toStruct converts any JSON-encodable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetState returns the session with its derived views
func (s *Server) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	logger.Debug("gRPC: Getting draft state")
	out, err := toStruct(s.store.State())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode state: %v", err)
	}
	return out, nil
}

// Dispatch runs one store action. The request is
// {"action": name, "args": {...}}.
func (s *Server) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	action := req.GetFields()["action"].GetStringValue()
	args := req.GetFields()["args"].GetStructValue()
	logger.Debug("gRPC: Dispatch", "action", action)

	result, err := s.dispatch(ctx, action, args)
	if err != nil {
		return nil, toStatus(err)
	}
	if result == nil {
		result = map[string]any{}
	}
	result["version"] = s.store.Version()

	out, err := toStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

type argError struct{ err error }

func (e argError) Error() string { return e.err.Error() }
func (e argError) Unwrap() error { return e.err }

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ae argError
	switch {
	case errors.As(err, &ae),
		errors.Is(err, store.ErrInvalidSlot),
		errors.Is(err, store.ErrInvalidPick):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		logger.Error("gRPC: Dispatch failed", "error", err)
		return status.Error(codes.Internal, err.Error())
	}
}

// bind decodes args into v through JSON.
func bind(args *structpb.Struct, v any) error {
	if args == nil {
		return nil
	}
	data, err := protojson.Marshal(args)
	if err != nil {
		return argError{err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return argError{fmt.Errorf("invalid args: %w", err)}
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, action string, args *structpb.Struct) (map[string]any, error) {
	switch action {
	case ActionSetFilters:
		var patch store.FiltersPatch
		if err := bind(args, &patch); err != nil {
			return nil, err
		}
		return map[string]any{"filters": s.store.SetFilters(patch)}, nil

	case ActionToggleQueue:
		var a struct {
			ID string `json:"id"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		return map[string]any{"ok": s.store.ToggleQueue(a.ID)}, nil

	case ActionMoveQueue:
		var a struct {
			From int `json:"from"`
			To   int `json:"to"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		return map[string]any{"ok": s.store.MoveQueue(a.From, a.To)}, nil

	case ActionClearQueue:
		s.store.ClearQueue()
		return map[string]any{"ok": true}, nil

	case ActionMarkDrafted:
		var a struct {
			ID    string `json:"id"`
			Value *bool  `json:"value"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		return map[string]any{"ok": s.store.MarkDrafted(a.ID, a.Value)}, nil

	case ActionSetMySlot:
		var a struct {
			Slot *int `json:"slot"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		if err := s.store.SetMySlot(a.Slot); err != nil {
			return nil, err
		}
		return map[string]any{"picks": s.store.PickTracker()}, nil

	case ActionSetCurrentPick:
		var a struct {
			Pick int `json:"pick"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		if err := s.store.SetCurrentPick(a.Pick); err != nil {
			return nil, err
		}
		return map[string]any{"picks": s.store.PickTracker()}, nil

	case ActionNextPick:
		n, err := s.store.NextPick()
		if err != nil {
			return nil, err
		}
		return map[string]any{"currentPick": n}, nil

	case ActionSetDense:
		var a struct {
			Dense bool `json:"dense"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		s.store.SetDense(a.Dense)
		return map[string]any{"dense": a.Dense}, nil

	case ActionReset:
		logger.Info("gRPC: Resetting draft")
		s.store.Reset()
		return map[string]any{"ok": true}, nil

	case ActionImportOverrides:
		var a struct {
			CSV string `json:"csv"`
		}
		if err := bind(args, &a); err != nil {
			return nil, err
		}
		res, err := s.store.ImportOverrides(strings.NewReader(a.CSV))
		if err != nil {
			return nil, argError{err}
		}
		return map[string]any{"result": res}, nil

	case ActionReload:
		if s.reload == nil {
			return nil, status.Error(codes.Unimplemented, "reload not configured")
		}
		if err := s.reload(ctx); err != nil {
			return nil, status.Errorf(codes.Unavailable, "reload: %v", err)
		}
		return map[string]any{"ok": true}, nil

	default:
		return nil, argError{fmt.Errorf("unknown action %q", action)}
	}
}

// StreamEvents streams events to clients
func (s *Server) StreamEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	logger.Debug("gRPC: New client connected to event stream")
	eventChan := s.bus.Subscribe()
	defer s.bus.Unsubscribe(eventChan)

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return status.Error(codes.Unavailable, "event bus closed")
			}
			msg, err := toStruct(event)
			if err != nil {
				logger.Error("gRPC: Failed to encode event", "type", event.Type, "error", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				logger.Error("gRPC: Failed to send event to stream", "error", err)
				return err
			}
		case <-stream.Context().Done():
			logger.Debug("gRPC: Client disconnected from event stream")
			return nil
		}
	}
}
