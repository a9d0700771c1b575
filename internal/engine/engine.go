// Package engine runs accepted code submissions inside an embedded Lua
// interpreter, capturing printed output and enforcing a wall-clock
// deadline. Cancellation is cooperative: the VM stops at the next
// instruction boundary, so abandoned work may briefly keep running.
package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"snippet-sandbox/internal/analyzer"
)

// Submission is one unit of user-provided code awaiting execution.
// Immutable once created.
type Submission struct {
	UserID     int64
	Code       string
	ReceivedAt time.Time
}

// Engine executes submissions. Each invocation gets a fresh interpreter
// state and a private output buffer, so concurrent executions cannot
// cross-contaminate each other's captured output.
type Engine struct {
	timeout        time.Duration
	maxCodeBytes   int
	maxOutputBytes int

	sem    chan struct{}
	active sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the default execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMaxCodeBytes overrides the submitted-code size limit.
func WithMaxCodeBytes(n int) Option {
	return func(e *Engine) { e.maxCodeBytes = n }
}

// WithMaxOutputBytes overrides the captured-output cap.
func WithMaxOutputBytes(n int) Option {
	return func(e *Engine) { e.maxOutputBytes = n }
}

// WithMaxConcurrent bounds simultaneous executions.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) { e.sem = make(chan struct{}, n) }
}

// DefaultTimeout is the wall-clock deadline for one execution.
const DefaultTimeout = 30 * time.Second

// New creates an engine with defaults matching the service configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		timeout:        DefaultTimeout,
		maxCodeBytes:   1 << 20,
		maxOutputBytes: 64 * 1024,
		sem:            make(chan struct{}, 100),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a submission with the given bindings and returns exactly
// one populated outcome variant. It never returns an error for failures
// inside the submitted code; those become a RuntimeFailure outcome.
func (e *Engine) Execute(ctx context.Context, sub Submission, bindings Bindings) Outcome {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(sub.Code)))

	logger := log.With().
		Str("exec_id", execID).
		Int64("user_id", sub.UserID).
		Str("code_hash", codeHash[:16]).
		Logger()

	start := time.Now()

	if len(sub.Code) > e.maxCodeBytes {
		return Outcome{
			Kind:       OutcomeRuntimeFailure,
			ErrorTrace: fmt.Sprintf("code exceeds %d byte limit", e.maxCodeBytes),
			Elapsed:    time.Since(start),
		}
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return Outcome{Kind: OutcomeTimeout, Elapsed: time.Since(start)}
	}

	e.active.Add(1)
	defer e.active.Done()

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Compile before spinning up the VM goroutine; a compile failure is a
	// runtime failure carrying the compiler diagnostic.
	proto, err := analyzer.Compile(sub.Code, "<submission>")
	if err != nil {
		logger.Info().Err(err).Msg("compile failed")
		return Outcome{
			Kind:       OutcomeRuntimeFailure,
			ErrorTrace: truncate(err.Error(), e.maxOutputBytes),
			Elapsed:    time.Since(start),
		}
	}

	var stdout lockedBuffer

	L := lua.NewState()
	L.SetContext(execCtx)
	installBindings(L, &stdout, bindings)

	done := make(chan error, 1)
	go func() {
		// The LState is confined to this goroutine. On timeout the engine
		// stops waiting; SetContext makes the VM raise at its next
		// checkpoint, after which the state is closed here.
		defer L.Close()
		L.Push(L.NewFunctionFromProto(proto))
		done <- L.PCall(0, lua.MultRet, nil)
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		if err != nil {
			if execCtx.Err() != nil {
				// The VM raised because the deadline fired mid-run.
				logger.Warn().Dur("elapsed", elapsed).Msg("execution timed out")
				return Outcome{Kind: OutcomeTimeout, Elapsed: e.timeout}
			}
			logger.Info().Dur("elapsed", elapsed).Msg("execution failed")
			return Outcome{
				Kind:          OutcomeRuntimeFailure,
				PartialStdout: truncate(stdout.String(), e.maxOutputBytes),
				ErrorTrace:    truncate(renderTrace(err), e.maxOutputBytes),
				Elapsed:       elapsed,
			}
		}

		logger.Info().Dur("elapsed", elapsed).Msg("execution completed")
		return Outcome{
			Kind:    OutcomeSuccess,
			Stdout:  truncate(stdout.String(), e.maxOutputBytes),
			Elapsed: elapsed,
		}

	case <-execCtx.Done():
		// Abandon the invocation: the goroutine above finishes on its own
		// once the VM observes the canceled context.
		logger.Warn().Dur("deadline", e.timeout).Msg("execution timed out, abandoning")
		return Outcome{Kind: OutcomeTimeout, Elapsed: e.timeout}
	}
}

// Timeout returns the configured execution deadline.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Wait blocks until all in-flight executions have finished or been
// abandoned. Used during shutdown.
func (e *Engine) Wait() { e.active.Wait() }

// renderTrace renders a raised Lua failure as text: error object plus the
// originating call stack when available.
func renderTrace(err error) string {
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return err.Error()
	}

	var b strings.Builder
	b.WriteString(apiErr.Object.String())
	if apiErr.StackTrace != "" {
		b.WriteString("\n")
		b.WriteString(apiErr.StackTrace)
	}
	return b.String()
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [output truncated]"
}

// lockedBuffer is the per-invocation output sink. The VM goroutine writes
// and the engine goroutine reads after the race resolves, so a mutex
// keeps the handoff safe even when work is abandoned mid-write.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) WriteString(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(s)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
