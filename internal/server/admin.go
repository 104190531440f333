package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// AdminServiceName is the full gRPC service name of the admin API.
const AdminServiceName = "mysticduel.admin.v1.Admin"

// AdminService is the operator API. Requests and responses are
// google.protobuf.Struct values so no generated code is needed.
type AdminService interface {
	CreateMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ForceResync(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type adminCall func(AdminService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call adminCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateMatch", AdminService.CreateMatch),
		unaryMethod("ListMatches", AdminService.ListMatches),
		unaryMethod("GetSnapshot", AdminService.GetSnapshot),
		unaryMethod("ForceResync", AdminService.ForceResync),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mysticduel/admin/v1/admin.proto",
}

// AdminServer implements AdminService over an engine and its hub.
type AdminServer struct {
	engine *game.Engine
	hub    *Hub
	logger *zap.Logger
}

// NewAdminServer creates the admin service.
func NewAdminServer(engine *game.Engine, hub *Hub, logger *zap.Logger) *AdminServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminServer{engine: engine, hub: hub, logger: logger}
}

// Register adds the admin and health services to s.
func (a *AdminServer) Register(s *grpc.Server) *health.Server {
	s.RegisterService(&adminServiceDesc, a)
	hs := health.NewServer()
	hs.SetServingStatus(AdminServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// CreateMatch hosts a new match. match_id is optional.
func (a *AdminServer) CreateMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := a.engine.CreateMatch(ctx, stringField(req, "match_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"match_id": id})
}

// ListMatches summarises every hosted match.
func (a *AdminServer) ListMatches(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	matches, err := a.engine.ListMatches(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(matches))
	for _, m := range matches {
		entry, err := toMap(m)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode match %s: %v", m.ID, err)
		}
		if a.hub != nil {
			entry["clients"] = a.hub.Clients(m.ID)
		}
		list = append(list, entry)
	}
	return structpb.NewStruct(map[string]any{"matches": list})
}

// GetSnapshot returns a fresh snapshot of a match.
func (a *AdminServer) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireMatchID(req)
	if err != nil {
		return nil, err
	}
	snap, err := a.engine.Snapshot(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	// The snapshot travels as JSON text: its seed does not fit a
	// float64 Struct number.
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return structpb.NewStruct(map[string]any{
		"match_id": snap.MatchID,
		"seq":      snap.Seq,
		"checksum": snap.Checksum,
		"snapshot": string(data),
	})
}

// ForceResync pushes a full snapshot to every client of a match; their
// acks resume the match if it was paused.
func (a *AdminServer) ForceResync(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireMatchID(req)
	if err != nil {
		return nil, err
	}
	if a.hub == nil {
		return nil, status.Error(codes.Unavailable, "no websocket hub configured")
	}
	n, err := a.hub.ForceResync(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	a.logger.Info("resync forced by admin", zap.String("match_id", id), zap.Int("clients", n))
	return structpb.NewStruct(map[string]any{"match_id": id, "clients": n})
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[key].GetStringValue()
}

func requireMatchID(req *structpb.Struct) (string, error) {
	id := stringField(req, "match_id")
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "match_id is required")
	}
	return id, nil
}

// toMap round-trips v through JSON so it can become a Struct.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, game.ErrMatchNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, game.ErrMatchExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	if v, ok := rules.AsViolation(err); ok {
		return status.Error(codes.FailedPrecondition, v.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// RecoveryInterceptor turns handler panics into Internal errors.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in rpc handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc handled", fields...)
		}
		return resp, err
	}
}

// AdminClient calls the admin service.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient wraps a connection.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMatch creates a match and returns its id.
func (c *AdminClient) CreateMatch(ctx context.Context, matchID string) (string, error) {
	out, err := c.invoke(ctx, "CreateMatch", map[string]any{"match_id": matchID})
	if err != nil {
		return "", err
	}
	return stringField(out, "match_id"), nil
}

// ListMatches returns the raw match list.
func (c *AdminClient) ListMatches(ctx context.Context) ([]any, error) {
	out, err := c.invoke(ctx, "ListMatches", map[string]any{})
	if err != nil {
		return nil, err
	}
	return out.GetFields()["matches"].GetListValue().AsSlice(), nil
}

// GetSnapshot fetches and decodes a match snapshot.
func (c *AdminClient) GetSnapshot(ctx context.Context, matchID string) (*game.MatchSnapshot, error) {
	out, err := c.invoke(ctx, "GetSnapshot", map[string]any{"match_id": matchID})
	if err != nil {
		return nil, err
	}
	var snap game.MatchSnapshot
	if err := json.Unmarshal([]byte(stringField(out, "snapshot")), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// ForceResync asks the server to resync every client of a match and
// returns how many were reached.
func (c *AdminClient) ForceResync(ctx context.Context, matchID string) (int, error) {
	out, err := c.invoke(ctx, "ForceResync", map[string]any{"match_id": matchID})
	if err != nil {
		return 0, err
	}
	return int(out.GetFields()["clients"].GetNumberValue()), nil
}
