package command

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/metrics"
)

// DefaultExecutor dispatches scripts to handlers registered per script type,
// applying a per-attempt timeout and optional retries.
type DefaultExecutor struct {
	config   *ExecutorConfig
	handlers map[catalog.ScriptType]Handler
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// NewDefaultExecutor creates a new DefaultExecutor with the provided configuration.
func NewDefaultExecutor(config *ExecutorConfig, logger zerolog.Logger) *DefaultExecutor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &DefaultExecutor{
		config:   config,
		handlers: make(map[catalog.ScriptType]Handler),
		logger:   logger.With().Str("component", "command-executor").Logger(),
	}
}

// Register registers a handler for a script type.
func (e *DefaultExecutor) Register(scriptType catalog.ScriptType, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[scriptType] = handler
	e.logger.Debug().Str("script_type", scriptType.String()).Msg("registered command handler")
}

// Run executes script against host.
func (e *DefaultExecutor) Run(ctx context.Context, host catalog.Host, script Script) *Result {
	start := time.Now()
	result := e.run(ctx, host, script)
	result.Duration = time.Since(start)

	status := "success"
	if !result.Success {
		status = "failed"
		e.logger.Warn().
			Str("script_type", script.Type.String()).
			Str("host", host.Name).
			Err(result.Error).
			Msg("command failed")
	}
	metrics.RecordCommandExecuted(script.Type.String(), status)
	return result
}

func (e *DefaultExecutor) run(ctx context.Context, host catalog.Host, script Script) *Result {
	if strings.TrimSpace(script.Command) == "" && script.Type != catalog.ScriptIPMI {
		return &Result{Error: ErrEmptyCommand}
	}

	e.mu.RLock()
	handler, ok := e.handlers[script.Type]
	e.mu.RUnlock()
	if !ok {
		return &Result{Error: fmt.Errorf("%w: %s", ErrNoHandler, script.Type)}
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.config.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return &Result{Error: ctx.Err()}
			case <-time.After(delay):
			}
			e.logger.Debug().
				Str("script_type", script.Type.String()).
				Int("attempt", attempt+1).
				Msg("retrying command")
		}

		execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		result, err := handler(execCtx, host, script)
		cancel()

		if err == nil && result != nil && result.Success {
			return result
		}
		if err == nil && result != nil {
			err = result.Error
		}
		if err == nil {
			err = fmt.Errorf("%s command returned no result", script.Type)
		}
		lastErr = err
	}
	return &Result{Error: lastErr}
}

// RegisteredTypes returns the script types with a handler.
func (e *DefaultExecutor) RegisteredTypes() []catalog.ScriptType {
	e.mu.RLock()
	defer e.mu.RUnlock()

	types := make([]catalog.ScriptType, 0, len(e.handlers))
	for t := range e.handlers {
		types = append(types, t)
	}
	return types
}

// DryRunHandler returns a handler that only logs the command and reports success.
func DryRunHandler(logger zerolog.Logger) Handler {
	return func(ctx context.Context, host catalog.Host, script Script) (*Result, error) {
		logger.Info().
			Str("script_type", script.Type.String()).
			Str("host", host.Name).
			Str("command", script.Command).
			Msg("dry run command")
		return &Result{Success: true, Output: "dry run"}, nil
	}
}

// ShellHandler runs server-side scripts with /bin/sh and rejects agent-side ones.
func ShellHandler() Handler {
	return func(ctx context.Context, host catalog.Host, script Script) (*Result, error) {
		if !script.RunsOnServer() {
			return nil, fmt.Errorf("%s script on agent requires a remote transport", script.Type)
		}
		out, err := exec.CommandContext(ctx, "/bin/sh", "-c", script.Command).CombinedOutput()
		if err != nil {
			return &Result{Output: string(out), Error: fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))}, nil
		}
		return &Result{Success: true, Output: string(out)}, nil
	}
}

var _ Executor = (*DefaultExecutor)(nil)
