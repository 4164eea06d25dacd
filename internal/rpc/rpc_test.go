package rpc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/test/bufconn"

	"github.com/calcengine/calcengine/internal/calculators"
	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/internal/rpc"
	"github.com/calcengine/calcengine/pkg/types"
)

const bufSize = 1 << 20

// startServer serves the Calculator service over an in-memory listener and
// returns a client configured with clientAuth.
func startServer(t *testing.T, serverAuth, clientAuth config.AuthConfig) *rpc.Client {
	t.Helper()

	reg := registry.New()
	if err := calculators.RegisterAll(reg); err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(reg, config.Default().Engine)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(eng.Close)

	lis := bufconn.Listen(bufSize)
	srv := rpc.NewGRPCServer(eng, serverAuth)
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial(
		config.ClientConfig{Endpoint: "passthrough:///bufnet", Timeout: 5 * time.Second, Auth: clientAuth},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func noAuth() config.AuthConfig { return config.AuthConfig{Mode: "none"} }

func compoundRequest() *rpc.CalculateRequest {
	return &rpc.CalculateRequest{
		CalculatorID: "compound-interest",
		Inputs:       types.Inputs{"principal": 10000, "monthlyPayment": 0, "annualRate": 4, "years": 10},
	}
}

func TestCalculate_RoundTrip(t *testing.T) {
	client := startServer(t, noAuth(), noAuth())

	res, err := client.Calculate(context.Background(), compoundRequest())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.FinalAmount != 14802.44 {
		t.Errorf("FinalAmount: got %.2f, want 14802.44", res.FinalAmount)
	}
	if res.Cached {
		t.Error("first call should not be cached")
	}
	if len(res.Breakdown) != 10 {
		t.Errorf("Breakdown: got %d rows, want 10", len(res.Breakdown))
	}

	res, err = client.Calculate(context.Background(), compoundRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Error("second call should be cached")
	}
}

func TestCalculate_ErrorMapping(t *testing.T) {
	client := startServer(t, noAuth(), noAuth())

	tests := []struct {
		name     string
		req      *rpc.CalculateRequest
		wantCode codes.Code
		wantType string
	}{
		{
			name: "validation",
			req: &rpc.CalculateRequest{
				CalculatorID: "compound-interest",
				Inputs:       types.Inputs{"principal": -1000, "annualRate": 4, "years": 10},
			},
			wantCode: codes.InvalidArgument,
			wantType: types.ErrTypeValidation,
		},
		{
			name:     "not found",
			req:      &rpc.CalculateRequest{CalculatorID: "nonexistent-calculator"},
			wantCode: codes.NotFound,
			wantType: types.ErrTypeNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Calculate(context.Background(), tc.req)
			var re *rpc.RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("got %v, want *rpc.RemoteError", err)
			}
			if re.Code != tc.wantCode {
				t.Errorf("code: got %v, want %v", re.Code, tc.wantCode)
			}
			if re.Payload.Type != tc.wantType {
				t.Errorf("payload type: got %q, want %q", re.Payload.Type, tc.wantType)
			}
		})
	}
}

func TestCalculate_ValidationFieldsInTrailer(t *testing.T) {
	client := startServer(t, noAuth(), noAuth())
	_, err := client.Calculate(context.Background(), &rpc.CalculateRequest{
		CalculatorID: "compound-interest",
		Inputs:       types.Inputs{"principal": -1000, "annualRate": 4, "years": 10},
	})
	var re *rpc.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("got %v", err)
	}
	if re.Payload.Field != "principal" || len(re.Payload.Errors) == 0 {
		t.Errorf("payload: got %+v", re.Payload)
	}
}

func TestCalculate_MissingCalculatorID(t *testing.T) {
	client := startServer(t, noAuth(), noAuth())
	_, err := client.Calculate(context.Background(), &rpc.CalculateRequest{})
	var re *rpc.RemoteError
	if !errors.As(err, &re) || re.Code != codes.InvalidArgument {
		t.Errorf("got %v, want InvalidArgument", err)
	}
}

func TestStats(t *testing.T) {
	client := startServer(t, noAuth(), noAuth())
	if _, err := client.Calculate(context.Background(), compoundRequest()); err != nil {
		t.Fatal(err)
	}

	resp, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if resp.Stats.Engine.CalculationCount != 1 {
		t.Errorf("CalculationCount: got %d, want 1", resp.Stats.Engine.CalculationCount)
	}
	if resp.Stats.Calculators != 8 {
		t.Errorf("Calculators: got %d, want 8", resp.Stats.Calculators)
	}
	if resp.GeneratedAt == "" {
		t.Error("GeneratedAt: empty")
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("CALCENGINE_TEST_KEY", "supersecret")
	serverAuth := config.AuthConfig{Mode: "apikey", KeyEnv: "CALCENGINE_TEST_KEY"}

	t.Run("missing key", func(t *testing.T) {
		client := startServer(t, serverAuth, noAuth())
		_, err := client.Stats(context.Background())
		var re *rpc.RemoteError
		if err == nil || errors.As(err, &re) {
			t.Fatalf("expected plain status error, got %v", err)
		}
		_, err = client.Calculate(context.Background(), compoundRequest())
		if !errors.As(err, &re) || re.Code != codes.Unauthenticated {
			t.Errorf("got %v, want Unauthenticated", err)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		client := startServer(t, serverAuth, serverAuth)
		if _, err := client.Calculate(context.Background(), compoundRequest()); err != nil {
			t.Errorf("Calculate: %v", err)
		}
	})
}
