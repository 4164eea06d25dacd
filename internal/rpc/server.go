package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/pkg/types"
)

// Server implements CalculatorServer on top of an engine.
type Server struct {
	eng *engine.Engine
}

// NewServer creates a Server that forwards calls to eng.
func NewServer(eng *engine.Engine) *Server {
	return &Server{eng: eng}
}

// NewGRPCServer builds a grpc.Server with the Calculator service registered
// and auth enforced per cfg.
func NewGRPCServer(eng *engine.Engine, auth config.AuthConfig, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		logInterceptor,
		APIKeyInterceptor(auth),
	))
	s := grpc.NewServer(opts...)
	RegisterCalculatorServer(s, NewServer(eng))
	return s
}

// Calculate is the unary RPC handler for one calculation.
// Authentication is enforced by the interceptor before this is called.
func (s *Server) Calculate(ctx context.Context, req *CalculateRequest) (*CalculateResponse, error) {
	if req.CalculatorID == "" {
		return nil, status.Error(codes.InvalidArgument, "calculator_id is required")
	}
	if req.Inputs == nil {
		req.Inputs = types.Inputs{}
	}

	res, err := s.eng.Calculate(ctx, engine.Request{
		CalculatorID: req.CalculatorID,
		Inputs:       req.Inputs,
		Stream:       req.Stream,
		Priority:     req.Priority,
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	slog.Debug("rpc: calculated",
		"calculator", req.CalculatorID,
		"cached", res.Cached,
		"final_amount", res.FinalAmount,
	)
	return &CalculateResponse{Result: res}, nil
}

// Stats returns the engine performance snapshot.
func (s *Server) Stats(ctx context.Context, _ *StatsRequest) (*StatsResponse, error) {
	return &StatsResponse{
		Stats:       s.eng.PerformanceStats(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// toStatus maps an engine error to a gRPC status and attaches the error
// payload as a trailer.
func toStatus(ctx context.Context, err error) error {
	if errors.Is(err, engine.ErrCanceled) {
		return status.Error(codes.Canceled, err.Error())
	}

	var (
		verr *engine.ValidationError
		cerr *engine.CalculationError
	)
	code := codes.Internal
	switch {
	case errors.As(err, &verr):
		code = codes.InvalidArgument
	case errors.Is(err, registry.ErrNotFound):
		code = codes.NotFound
	case errors.As(err, &cerr):
		code = codes.Internal
	default:
		slog.Error("rpc: unexpected engine error", "err", err)
	}

	p := engine.Describe(err)
	if b, merr := json.Marshal(p); merr == nil {
		grpc.SetTrailer(ctx, metadata.Pairs(errorTrailer, string(b))) //nolint:errcheck
	}
	return status.Error(code, err.Error())
}
