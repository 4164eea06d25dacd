package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/pkg/types"
)

const (
	backoffInitial    = 100 * time.Millisecond
	backoffMax        = 2 * time.Second
	backoffMultiplier = 2.0
	maxAttempts       = 4

	// requestIDHeader carries a per-call id that the server logs.
	requestIDHeader = "x-request-id"
)

// Client calls a remote Calculator service.
type Client struct {
	conn    *grpc.ClientConn
	header  string
	key     string
	timeout time.Duration
}

// RemoteError is a failed Calculate whose server-side error payload is known.
type RemoteError struct {
	Code    codes.Code
	Payload types.ErrorPayload
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: %s: %s", e.Code, e.Payload.Message)
}

// Dial creates a Client for cfg.Endpoint. The connection is established
// lazily on the first call. extra options are appended after the defaults;
// tests use them to inject an in-memory dialer.
func Dial(cfg config.ClientConfig, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	opts = append(opts, extra...)
	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", cfg.Endpoint, err)
	}
	c := &Client{conn: conn, timeout: cfg.Timeout}
	if cfg.Auth.Mode == "apikey" {
		c.header = cfg.Auth.EffectiveHeader()
		c.key = cfg.Auth.Key()
	}
	return c, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Calculate runs one calculation remotely. Transient failures are retried
// with backoff; engine failures are returned as *RemoteError.
func (c *Client) Calculate(ctx context.Context, req *CalculateRequest) (*types.CalculationResult, error) {
	resp := new(CalculateResponse)
	var trailer metadata.MD
	if err := c.invoke(ctx, methodCalculate, req, resp, grpc.Trailer(&trailer)); err != nil {
		return nil, remoteError(err, trailer)
	}
	return resp.Result, nil
}

// Stats fetches the remote engine's performance snapshot.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	resp := new(StatsResponse)
	if err := c.invoke(ctx, methodStats, &StatsRequest{}, resp); err != nil {
		return nil, fmt.Errorf("rpc: stats: %w", err)
	}
	return resp, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDHeader, uuid.NewString())
	if c.key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, c.header, c.key)
	}
	bo := newBackoff()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		err = c.conn.Invoke(callCtx, method, req, resp, opts...)
		cancel()
		if err == nil || !isTransient(err) || attempt == maxAttempts {
			return err
		}
		wait := bo.next()
		slog.Debug("rpc: transient error, will retry",
			"method", method, "attempt", attempt, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// isTransient reports whether a call may succeed when retried.
func isTransient(err error) bool {
	return status.Code(err) == codes.Unavailable
}

func remoteError(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc: calculate: %w", err)
	}
	re := &RemoteError{Code: st.Code(), Payload: types.ErrorPayload{Type: types.ErrTypeInternal, Message: st.Message()}}
	if vals := trailer.Get(errorTrailer); len(vals) > 0 {
		if jerr := json.Unmarshal([]byte(vals[0]), &re.Payload); jerr != nil {
			slog.Warn("rpc: malformed error trailer", "err", jerr)
		}
	}
	return re
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
