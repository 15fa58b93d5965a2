package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/internal/telemetry"
	"github.com/marmos91/resolvd/pkg/api/auth"
	"github.com/marmos91/resolvd/pkg/classifier"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Metadata keys read and written by the server.
const (
	MetadataRequestID     = "x-request-id"
	MetadataAuthorization = "authorization"
)

// The chain, outermost first:
//
//	call context -> tracing -> observe -> rate limit -> auth -> encode -> handler
//
// encode turns raw handler errors into classified statuses, so everything
// outside it sees the final status code.

func (s *Server) unaryInterceptors() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			ctx = newCallContext(ctx, info.FullMethod)
			_ = grpc.SetHeader(ctx, metadata.Pairs(MetadataRequestID, logger.FromContext(ctx).RequestID))

			ctx, span := startCallSpan(ctx, info.FullMethod)
			resp, err := s.guarded(ctx, info.FullMethod, func(ctx context.Context) (any, error) {
				resp, err := handler(ctx, req)
				if err != nil {
					return nil, s.encoder.Error(err)
				}
				return resp, nil
			})
			finishCallSpan(ctx, span, err)
			return resp, err
		},
	}
}

func (s *Server) streamInterceptors() []grpc.StreamServerInterceptor {
	return []grpc.StreamServerInterceptor{
		func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			ctx := newCallContext(ss.Context(), info.FullMethod)
			_ = ss.SetHeader(metadata.Pairs(MetadataRequestID, logger.FromContext(ctx).RequestID))

			ctx, span := startCallSpan(ctx, info.FullMethod)
			_, err := s.guarded(ctx, info.FullMethod, func(ctx context.Context) (any, error) {
				if err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx}); err != nil {
					return nil, s.encoder.Error(err)
				}
				return nil, nil
			})
			finishCallSpan(ctx, span, err)
			return err
		},
	}
}

// guarded applies rate limiting and authentication around next and records
// the outcome.
func (s *Server) guarded(ctx context.Context, method string, next func(ctx context.Context) (any, error)) (resp any, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, method, start, err) }()

	if err := s.allow(method); err != nil {
		return nil, err
	}
	ctx, err = s.authorize(ctx, method)
	if err != nil {
		return nil, err
	}
	return next(ctx)
}

// wrappedStream replaces the context of a server stream.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// ============================================================================
// Call context
// ============================================================================

// newCallContext attaches a LogContext carrying the method, peer and request
// id. A request id sent by the client is kept.
func newCallContext(ctx context.Context, fullMethod string) context.Context {
	var requestID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataRequestID); len(v) > 0 {
			requestID = v[0]
		}
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var addr string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	return logger.WithContext(ctx, logger.NewLogContext(fullMethod, addr, requestID))
}

// ============================================================================
// Tracing
// ============================================================================

// metadataCarrier adapts gRPC metadata to the OpenTelemetry propagator.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func startCallSpan(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = telemetry.Propagator().Extract(ctx, metadataCarrier(md))

	lc := logger.FromContext(ctx)
	ctx, span := telemetry.StartRPCSpan(ctx, fullMethod,
		telemetry.RequestID(lc.RequestID),
		telemetry.ClientAddr(lc.Peer),
	)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		ctx = logger.WithContext(ctx, lc.WithTrace(traceID, telemetry.SpanID(ctx)))
	}
	return ctx, span
}

func finishCallSpan(ctx context.Context, span trace.Span, err error) {
	defer span.End()
	st := status.Convert(err)
	span.SetAttributes(telemetry.RPCStatusCode(uint32(st.Code())))
	if err == nil {
		return
	}
	if d, ok := classifier.Decode(st); ok && d.Reason != "" {
		span.SetAttributes(telemetry.ErrorReason(d.Reason))
	}
	telemetry.RecordError(ctx, err)
}

// ============================================================================
// Completion log and metrics
// ============================================================================

func (s *Server) observe(ctx context.Context, method string, start time.Time, err error) {
	st := status.Convert(err)
	code := st.Code()
	if s.metrics != nil {
		s.metrics.ObserveCall(method, code.String(), time.Since(start))
	}

	args := []any{logger.KeyCode, code.String(), logger.KeyDurationMs, logger.Duration(start)}
	if err != nil {
		text := st.Message()
		if d, ok := classifier.Decode(st); ok {
			text = d.Text
			if d.Reason != "" {
				args = append(args, logger.KeyReason, d.Reason)
			}
		}
		args = append(args, logger.KeyError, text)
	}

	switch code {
	case codes.OK:
		logger.DebugCtx(ctx, "RPC completed", args...)
	case codes.Internal, codes.Unknown:
		logger.ErrorCtx(ctx, "RPC failed", args...)
	default:
		logger.WarnCtx(ctx, "RPC failed", args...)
	}
}

// ============================================================================
// Rate limiting
// ============================================================================

func (s *Server) allow(method string) error {
	if s.limiter == nil || s.limiter.Allow() {
		return nil
	}
	if s.metrics != nil {
		s.metrics.ObserveRateLimited(method)
	}
	return s.encoder.Error(engerrors.NewThrottled(method))
}

// ============================================================================
// Authentication
// ============================================================================

type claimsKey struct{}

// ClaimsFromContext returns the token claims of an authenticated call.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

func (s *Server) authorize(ctx context.Context, method string) (context.Context, error) {
	if s.tokens == nil {
		return ctx, nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(MetadataAuthorization)
	if len(values) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	raw, ok := cutBearer(values[0])
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "authorization must use the Bearer scheme")
	}

	claims, err := s.tokens.Validate(raw)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, err.Error())
	}
	if mutating[method] && !claims.CanWrite() {
		return ctx, status.Errorf(codes.PermissionDenied, "token scope %q cannot call %s", claims.Scope, method)
	}

	telemetry.SetAttributes(ctx, telemetry.Subject(claims.Subject))
	return context.WithValue(ctx, claimsKey{}, claims), nil
}

func cutBearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
