package rpc

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/calcengine/calcengine/internal/config"
)

// APIKeyInterceptor guards every unary call with the static key from auth.
// The key is accepted from the configured header or as an
// "authorization: Bearer <key>" value. Mode "none" or an empty key disables
// the check.
func APIKeyInterceptor(auth config.AuthConfig) grpc.UnaryServerInterceptor {
	key := []byte(auth.Key())
	header := strings.ToLower(auth.EffectiveHeader())
	enforce := auth.Mode == "apikey" && len(key) > 0

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !enforce {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		if !keyMatches(presentedKey(md, header), key) {
			slog.Warn("rpc: rejected call", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

func presentedKey(md metadata.MD, header string) string {
	if v := md.Get(header); len(v) > 0 && v[0] != "" {
		return v[0]
	}
	if v := md.Get("authorization"); len(v) > 0 {
		if tok, ok := strings.CutPrefix(v[0], "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return ""
}

func keyMatches(got string, want []byte) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), want) == 1
}

// logInterceptor logs every call at debug level with the caller's request id
// when one is present.
func logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if id := md.Get(requestIDHeader); len(id) > 0 {
			attrs = append(attrs, "request_id", id[0])
		}
	}
	slog.Debug("rpc: call", attrs...)
	return resp, err
}
