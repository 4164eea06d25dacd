package rpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/calcengine/calcengine/internal/config"
)

func passHandler(ctx context.Context, req any) (any, error) {
	return "ok", nil
}

func TestAPIKeyInterceptor(t *testing.T) {
	t.Setenv("CALCENGINE_RPC_KEY", "supersecret")
	apikey := config.AuthConfig{Mode: "apikey", KeyEnv: "CALCENGINE_RPC_KEY"}

	tests := []struct {
		name     string
		auth     config.AuthConfig
		md       metadata.MD
		wantCode codes.Code
	}{
		{name: "mode none passes", auth: config.AuthConfig{Mode: "none", KeyEnv: "CALCENGINE_RPC_KEY"}, wantCode: codes.OK},
		{name: "unset key env passes", auth: config.AuthConfig{Mode: "apikey", KeyEnv: "CALCENGINE_RPC_UNSET"}, wantCode: codes.OK},
		{name: "correct key", auth: apikey, md: metadata.Pairs("x-api-key", "supersecret"), wantCode: codes.OK},
		{name: "bearer token", auth: apikey, md: metadata.Pairs("authorization", "Bearer supersecret"), wantCode: codes.OK},
		{name: "custom header", auth: config.AuthConfig{Mode: "apikey", KeyEnv: "CALCENGINE_RPC_KEY", Header: "X-Calc-Key"}, md: metadata.Pairs("x-calc-key", "supersecret"), wantCode: codes.OK},
		{name: "wrong key", auth: apikey, md: metadata.Pairs("x-api-key", "wrong"), wantCode: codes.Unauthenticated},
		{name: "bearer without prefix", auth: apikey, md: metadata.Pairs("authorization", "supersecret"), wantCode: codes.Unauthenticated},
		{name: "no metadata", auth: apikey, wantCode: codes.Unauthenticated},
		{name: "empty metadata", auth: apikey, md: metadata.MD{}, wantCode: codes.Unauthenticated},
		{name: "wrong header", auth: apikey, md: metadata.Pairs("x-other", "supersecret"), wantCode: codes.Unauthenticated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.md)
			}
			res, err := APIKeyInterceptor(tc.auth)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: methodStats}, passHandler)
			if code := status.Code(err); code != tc.wantCode {
				t.Fatalf("code: got %v, want %v", code, tc.wantCode)
			}
			if tc.wantCode == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestBackoff_Truncates(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 20; i++ {
		d := b.next()
		if d < 0 || d > backoffMax+backoffMax/4 {
			t.Fatalf("step %d: %v out of range", i, d)
		}
	}
	if b.current != backoffMax {
		t.Errorf("current: got %v, want %v", b.current, backoffMax)
	}
}

func TestJSONCodec_KeepsNumberPrecision(t *testing.T) {
	var req CalculateRequest
	if err := (jsonCodec{}).Unmarshal([]byte(`{"calculator_id":"loan","inputs":{"principal":10000.005}}`), &req); err != nil {
		t.Fatal(err)
	}
	if got := req.Inputs["principal"]; got.(interface{ String() string }).String() != "10000.005" {
		t.Errorf("principal: got %v", got)
	}
}
