// Package bot implements the chat command layer: a router dispatching
// named commands and the handlers that drive the code-intake pipeline
// (policy gate, static analysis, execution, accounting).
//
// The chat transport itself is an external collaborator: it delivers
// parsed messages and carries rendered replies back. Everything here is
// transport-agnostic.
package bot

import "context"

// Message is one inbound chat message as delivered by the bridge.
type Message struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	ChannelID int64  `json:"channel_id"`
	GuildID   int64  `json:"guild_id"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// Responder carries rendered replies back to the chat. A command may
// reply more than once (status line, then result).
type Responder interface {
	Reply(ctx context.Context, text string) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, text string) error

func (f ResponderFunc) Reply(ctx context.Context, text string) error {
	return f(ctx, text)
}

// HandlerFunc is one command implementation. args is the raw argument
// text after the command name. A returned error is rendered as a
// user-facing denial or failure message; it never crashes the process.
type HandlerFunc func(ctx context.Context, msg Message, args string, respond Responder) error

// Command describes one registered chat command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
	Run     HandlerFunc
}
