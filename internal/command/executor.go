// Package command runs remote and local commands issued by escalation operations.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/kneutral-org/escalator/internal/catalog"
)

var (
	// ErrNoHandler is returned when a script type has no registered handler.
	ErrNoHandler = errors.New("script type not registered")
	// ErrEmptyCommand is returned when a script has no command text.
	ErrEmptyCommand = errors.New("empty command")
)

// Script is a fully resolved command ready to run against a host.
type Script struct {
	Type       catalog.ScriptType
	ScriptID   uint64
	ExecuteOn  catalog.ExecuteOn
	Port       string
	AuthType   int
	Username   string
	Password   string
	PublicKey  string
	PrivateKey string
	Command    string
}

// ScriptFromOperation builds a Script from a command operation with an already expanded command.
func ScriptFromOperation(op *catalog.OpCommand, command string) Script {
	return Script{
		Type:       op.Type,
		ScriptID:   op.ScriptID,
		ExecuteOn:  op.ExecuteOn,
		Port:       op.Port,
		AuthType:   op.AuthType,
		Username:   op.Username,
		Password:   op.Password,
		PublicKey:  op.PublicKey,
		PrivateKey: op.PrivateKey,
		Command:    command,
	}
}

// RunsOnServer reports whether the script runs on the server without a target host.
func (s Script) RunsOnServer() bool {
	return (s.Type == catalog.ScriptCustom || s.Type == catalog.ScriptGlobal) && s.ExecuteOn == catalog.ExecuteOnServer
}

// Result is the outcome of one command invocation.
type Result struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output,omitempty"`
	Error    error         `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Handler runs a script of one type against a host. host is zero-valued for server-side scripts.
type Handler func(ctx context.Context, host catalog.Host, script Script) (*Result, error)

// Executor runs scripts against hosts.
type Executor interface {
	// Run executes the script and always returns a non-nil Result.
	Run(ctx context.Context, host catalog.Host, script Script) *Result
}

// ExecutorConfig holds configuration for the command executor.
type ExecutorConfig struct {
	// MaxRetries is the number of retries after a failed attempt.
	MaxRetries int
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration
	// Timeout is the maximum time allowed for a single attempt.
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default executor configuration. Commands are not retried.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxRetries: 0,
		RetryDelay: time.Second,
		Timeout:    30 * time.Second,
	}
}
