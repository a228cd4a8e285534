package logger

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	process     *zap.Logger
	processOnce sync.Once
)

// New builds the process logger once. Production emits JSON at info; every other environment
// uses the colored console encoder at debug. A non-empty level overrides either default.
func New(env, level string) (*zap.Logger, error) {
	var err error
	processOnce.Do(func() {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if env == "production" {
			cfg = zap.NewProductionConfig()
		}

		if level != "" {
			var parsed zapcore.Level
			if err = parsed.UnmarshalText([]byte(level)); err != nil {
				err = fmt.Errorf("parse log level %q: %w", level, err)
				return
			}
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}

		process, err = cfg.Build(zap.Fields(zap.String("env", env)))
	})
	return process, err
}

type requestIDKey struct{}

// ContextWithRequestID stores the request identifier on ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request identifier stored on ctx.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithContext decorates base with the request and trace identifiers found on ctx. A nil base
// falls back to the process logger.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = process
	}
	if base == nil {
		base = zap.NewNop()
	}
	if ctx == nil {
		return base
	}

	var fields []zap.Field
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if fields == nil {
		return base
	}
	return base.With(fields...)
}

// MaskEmail keeps up to three leading characters of the local part and the domain:
// john.doe@example.com becomes joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}

	runes := []rune(local)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes) + "***@" + domain
}

// MaskIP keeps the /16 of an IPv4 address and the /64 of an IPv6 address.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "***"
	}

	if addr.Is4() || addr.Is4In6() {
		b := addr.Unmap().As4()
		return fmt.Sprintf("%d.%d.*.*", b[0], b[1])
	}

	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x:%02x%02x:*:*:*:*",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}
