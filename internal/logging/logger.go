// Package logging provides structured logging utilities.
package logging

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kneutral-org/escalator/internal/metrics"
)

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewLogger creates a JSON logger writing to stdout, tagged with the service name.
func NewLogger(serviceName string, level string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// NewPrettyLogger creates a logger with console output for development.
func NewPrettyLogger(serviceName string, level string) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(consoleWriter).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// EscalationLogger returns a logger carrying the identity and progress of one escalation.
func EscalationLogger(logger zerolog.Logger, escalationID, actionID, eventID, recoveryEventID uint64, escStep int) zerolog.Logger {
	ctx := logger.With().
		Uint64("escalation_id", escalationID).
		Uint64("action_id", actionID).
		Uint64("event_id", eventID).
		Int("esc_step", escStep)
	if recoveryEventID != 0 {
		ctx = ctx.Uint64("r_event_id", recoveryEventID)
	}
	return ctx.Logger()
}

// CycleLogger returns a logger tagging everything logged during one worker cycle.
func CycleLogger(logger zerolog.Logger, cycleID string, worker int) zerolog.Logger {
	return logger.With().
		Str("cycle_id", cycleID).
		Int("worker", worker).
		Logger()
}

// RequestLogger returns a Gin middleware logging and counting requests to the ops endpoints.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(statusCode))

		event := logger.Debug()
		switch {
		case statusCode >= 500:
			event = logger.Error()
		case statusCode >= 400:
			event = logger.Warn()
		}

		event.
			Str("type", "http_request").
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Str("clientIp", c.ClientIP()).
			Dur("latency", time.Since(start))

		if len(c.Errors) > 0 {
			event.Str("error", c.Errors.String())
		}

		event.Msg("HTTP request")
	}
}

func grpcEvent(logger zerolog.Logger, err error) (*zerolog.Event, codes.Code) {
	code := codes.OK
	if err != nil {
		code = codes.Unknown
		if s, ok := status.FromError(err); ok {
			code = s.Code()
		}
	}
	if code != codes.OK {
		return logger.Error().Err(err), code
	}
	return logger.Debug(), code
}

// GRPCLogger returns a gRPC unary server interceptor for request logging.
func GRPCLogger(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		event, code := grpcEvent(logger, err)
		event.
			Str("type", "grpc_request").
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}

// GRPCStreamLogger returns a gRPC stream server interceptor, used for health watches.
func GRPCStreamLogger(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		event, code := grpcEvent(logger, err)
		event.
			Str("type", "grpc_stream").
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("gRPC stream")

		return err
	}
}
