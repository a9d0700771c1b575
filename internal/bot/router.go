package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"snippet-sandbox/internal/monitor"
	"snippet-sandbox/internal/policy"
)

// Router resolves command names and aliases and dispatches messages.
// Per-command failures are rendered as replies, never propagated: only
// transport errors (a failed Reply) surface to the caller.
type Router struct {
	prefix  string
	byName  map[string]*Command
	ordered []*Command
	metrics *monitor.Metrics
}

// NewRouter creates a router for the given command prefix.
func NewRouter(prefix string, metrics *monitor.Metrics) *Router {
	return &Router{
		prefix:  prefix,
		byName:  make(map[string]*Command),
		metrics: metrics,
	}
}

// Register adds a command and its aliases. Duplicate names panic: the
// command table is static and a collision is a programming error.
func (r *Router) Register(cmd *Command) {
	names := append([]string{cmd.Name}, cmd.Aliases...)
	for _, n := range names {
		if _, exists := r.byName[n]; exists {
			panic(fmt.Sprintf("bot: duplicate command name %q", n))
		}
		r.byName[n] = cmd
	}
	r.ordered = append(r.ordered, cmd)
}

// Commands returns registered commands in registration order.
func (r *Router) Commands() []*Command {
	return r.ordered
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// Dispatch routes a message to its command. Messages without the prefix
// or naming an unknown command are ignored (handled=false). A returned
// error means the transport failed to carry a reply.
func (r *Router) Dispatch(ctx context.Context, msg Message, respond Responder) (handled bool, err error) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, r.prefix) {
		return false, nil
	}

	name, args, _ := strings.Cut(strings.TrimPrefix(content, r.prefix), " ")
	name = strings.TrimSpace(name)
	args = strings.TrimSpace(args)

	cmd, ok := r.byName[name]
	if !ok {
		return false, nil
	}

	if r.metrics != nil {
		r.metrics.RecordCommand(cmd.Name)
	}

	log.Debug().
		Str("command", cmd.Name).
		Int64("user_id", msg.UserID).
		Msg("dispatching command")

	if runErr := cmd.Run(ctx, msg, args, respond); runErr != nil {
		return true, r.renderFailure(ctx, cmd, runErr, respond)
	}
	return true, nil
}

// renderFailure turns a handler error into a user-facing reply.
func (r *Router) renderFailure(ctx context.Context, cmd *Command, runErr error, respond Responder) error {
	var msg string
	switch {
	case errors.Is(runErr, policy.ErrBlocked):
		msg = "Permission denied: you are blocked from using this bot."
	case errors.Is(runErr, policy.ErrNotOwner):
		msg = "Permission denied: only the bot owner can do that."
	case errors.Is(runErr, errMissingArgs):
		msg = fmt.Sprintf("Missing arguments. Usage: %s%s %s", r.prefix, cmd.Name, cmd.Usage)
	default:
		log.Error().Err(runErr).Str("command", cmd.Name).Msg("command failed")
		msg = fmt.Sprintf("Command failed: %v", runErr)
	}
	return respond.Reply(ctx, msg)
}

var errMissingArgs = errors.New("missing required arguments")
