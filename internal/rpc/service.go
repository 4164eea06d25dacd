package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "calcengine.v1.Calculator"

const (
	methodCalculate = "/" + ServiceName + "/Calculate"
	methodStats     = "/" + ServiceName + "/Stats"
)

// errorTrailer carries the JSON error payload of a failed Calculate.
const errorTrailer = "calcengine-error"

// CalculateRequest asks for one calculation.
type CalculateRequest struct {
	CalculatorID string       `json:"calculator_id"`
	Inputs       types.Inputs `json:"inputs"`
	Stream       string       `json:"stream,omitempty"`
	Priority     int          `json:"priority,omitempty"`
}

// CalculateResponse carries the result of a calculation.
type CalculateResponse struct {
	Result *types.CalculationResult `json:"result"`
}

// StatsRequest is empty.
type StatsRequest struct{}

// StatsResponse carries the engine performance snapshot.
type StatsResponse struct {
	Stats       engine.PerformanceStats `json:"stats"`
	GeneratedAt string                  `json:"generated_at"` // RFC3339
}

// CalculatorServer is the server API of the Calculator service.
type CalculatorServer interface {
	Calculate(context.Context, *CalculateRequest) (*CalculateResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
}

// RegisterCalculatorServer registers srv on s.
func RegisterCalculatorServer(s grpc.ServiceRegistrar, srv CalculatorServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalculatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Calculate", Handler: calculateHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "calcengine/v1/calculator",
}

func calculateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CalculateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).Calculate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCalculate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CalculatorServer).Calculate(ctx, req.(*CalculateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStats}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CalculatorServer).Stats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}
