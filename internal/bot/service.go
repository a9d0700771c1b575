package bot

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"snippet-sandbox/internal/analyzer"
	"snippet-sandbox/internal/engine"
	"snippet-sandbox/internal/ledger"
	"snippet-sandbox/internal/monitor"
	"snippet-sandbox/internal/policy"
	"snippet-sandbox/internal/storage"
)

// Service wires the code-intake pipeline behind the command table:
// access policy gate, static analyzer gate, execution engine, and the
// accounting ledger, plus auditing and metrics around them.
type Service struct {
	router   *Router
	analyzer *analyzer.Analyzer
	engine   *engine.Engine
	policy   *policy.Policy
	ledger   *ledger.Ledger
	audit    *storage.AuditWriter
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
}

// NewService builds the service and registers the full command table.
func NewService(
	prefix string,
	an *analyzer.Analyzer,
	en *engine.Engine,
	pol *policy.Policy,
	led *ledger.Ledger,
	audit *storage.AuditWriter,
	metrics *monitor.Metrics,
) *Service {
	s := &Service{
		router:   NewRouter(prefix, metrics),
		analyzer: an,
		engine:   en,
		policy:   pol,
		ledger:   led,
		audit:    audit,
		metrics:  metrics,
		tracer:   monitor.NewTracer(),
	}

	s.router.Register(&Command{
		Name:    "run",
		Aliases: []string{"exec", "eval", "lua"},
		Usage:   "<code>",
		Help:    "Execute a code snippet",
		Run:     s.cmdRun,
	})
	s.router.Register(&Command{
		Name:  "analyze",
		Usage: "<code>",
		Help:  "Analyze a snippet for safety and syntax",
		Run:   s.cmdAnalyze,
	})
	s.router.Register(&Command{
		Name:  "trust",
		Usage: "<user id>",
		Help:  "Allow a user to bypass safety analysis (owner only)",
		Run:   s.adminCmd(s.policy.Trust, "User %d is now trusted and may run flagged code."),
	})
	s.router.Register(&Command{
		Name:  "untrust",
		Usage: "<user id>",
		Help:  "Revoke a user's trusted status (owner only)",
		Run:   s.adminCmd(s.policy.Untrust, "User %d is no longer trusted."),
	})
	s.router.Register(&Command{
		Name:  "block",
		Usage: "<user id>",
		Help:  "Block a user from the bot (owner only)",
		Run:   s.adminCmd(s.policy.Block, "User %d is now blocked."),
	})
	s.router.Register(&Command{
		Name:  "unblock",
		Usage: "<user id>",
		Help:  "Unblock a user (owner only)",
		Run:   s.adminCmd(s.policy.Unblock, "User %d is now unblocked."),
	})
	s.router.Register(&Command{
		Name:  "stats",
		Usage: "[user id]",
		Help:  "Show execution statistics",
		Run:   s.cmdStats,
	})
	s.router.Register(&Command{
		Name: "leaderboard",
		Help: "Top 10 users by executions",
		Run:  s.cmdLeaderboard,
	})
	s.router.Register(&Command{
		Name:  "history",
		Usage: "[limit]",
		Help:  "Most recent executions (default 5, max 10)",
		Run:   s.cmdHistory,
	})
	s.router.Register(&Command{
		Name: "info",
		Help: "Show this help text",
		Run:  s.cmdInfo,
	})

	return s
}

// Router exposes the command router for the transport layer.
func (s *Service) Router() *Router {
	return s.router
}

// cmdRun is the full pipeline: blocked gate, analyzer gate (with
// trusted bypass), execution, accounting, audit, reply.
func (s *Service) cmdRun(ctx context.Context, msg Message, args string, respond Responder) error {
	if args == "" {
		return errMissingArgs
	}

	if err := s.policy.Authorize(msg.UserID); err != nil {
		s.metrics.RecordRejection("blocked")
		return err
	}

	if err := respond.Reply(ctx, "Compiling and executing..."); err != nil {
		return err
	}

	code := CleanCode(args)
	s.metrics.CodeSizeBytes.Observe(float64(len(code)))

	res := s.analyzer.Analyze(code)
	if !res.Safe() && !s.policy.IsTrusted(msg.UserID) {
		reason := "unsafe"
		if strings.Contains(res.Reason, "syntax error") {
			reason = "syntax"
		}
		s.metrics.RecordRejection(reason)
		s.logAudit(msg.UserID, code, "rejected", "", res.Reason, 0)
		return respond.Reply(ctx, "Code analysis failed: "+res.Reason)
	}

	sub := engine.Submission{
		UserID:     msg.UserID,
		Code:       code,
		ReceivedAt: time.Now(),
	}

	execCtx, span := s.tracer.StartSpan(ctx, "execute",
		monitor.AttrUserID.Int64(msg.UserID),
		monitor.AttrCommand.String("run"),
	)
	defer span.End()

	s.metrics.ActiveExecutions.Inc()
	out := s.engine.Execute(execCtx, sub, s.bindings(msg))
	s.metrics.ActiveExecutions.Dec()

	span.SetAttributes(
		monitor.AttrOutcome.String(out.Kind.String()),
		monitor.AttrDurationMS.Int64(out.Elapsed.Milliseconds()),
	)

	s.metrics.RecordExecution(out.Kind.String(), out.Elapsed.Seconds())
	s.metrics.OutputSizeBytes.Observe(float64(len(out.Output())))

	s.ledger.Record(msg.UserID, code, out)
	s.logAudit(msg.UserID, code, out.Kind.String(), out.Output(), out.ErrorTrace, out.Elapsed)

	stats := s.ledger.StatsFor(msg.UserID)
	return respond.Reply(ctx, renderOutcome(code, out, stats, s.engine.Timeout()))
}

// cmdAnalyze runs the static analyzer only, with tree statistics.
func (s *Service) cmdAnalyze(ctx context.Context, msg Message, args string, respond Responder) error {
	if args == "" {
		return errMissingArgs
	}

	code := CleanCode(args)
	res := s.analyzer.Analyze(code)

	var b strings.Builder
	b.WriteString("Code analysis\n")
	b.WriteString(FormatCode(Truncate(code, 512), "lua"))
	b.WriteString("\nResult: ")
	if res.Safe() {
		b.WriteString("passed")
	} else {
		b.WriteString(res.Reason)
	}

	if stats, err := s.analyzer.Stats(code); err == nil {
		fmt.Fprintf(&b, "\nComplexity: functions: %d | tables: %d | lines: %d",
			stats.Functions, stats.Tables, stats.Lines)
	}

	return respond.Reply(ctx, b.String())
}

// adminCmd builds a handler for one owner-only set mutation. The policy
// layer enforces ownership and reports persistence failures, which are
// surfaced to the invoking admin rather than swallowed.
func (s *Service) adminCmd(op func(actorID, targetID int64) error, okFormat string) HandlerFunc {
	return func(ctx context.Context, msg Message, args string, respond Responder) error {
		target, err := parseUserID(args)
		if err != nil {
			return errMissingArgs
		}
		if err := op(msg.UserID, target); err != nil {
			return err
		}
		return respond.Reply(ctx, fmt.Sprintf(okFormat, target))
	}
}

func (s *Service) cmdStats(ctx context.Context, msg Message, args string, respond Responder) error {
	target := msg.UserID
	if args != "" {
		id, err := parseUserID(args)
		if err != nil {
			return errMissingArgs
		}
		target = id
	}

	return respond.Reply(ctx, renderStats(target, s.ledger.StatsFor(target)))
}

func (s *Service) cmdLeaderboard(ctx context.Context, _ Message, _ string, respond Responder) error {
	return respond.Reply(ctx, renderLeaderboard(s.ledger.Leaderboard(10)))
}

func (s *Service) cmdHistory(ctx context.Context, _ Message, args string, respond Responder) error {
	limit := 5
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil {
			return errMissingArgs
		}
		limit = n
	}
	if limit > ledger.MaxRecent {
		limit = ledger.MaxRecent
	}

	return respond.Reply(ctx, renderHistory(s.ledger.Recent(limit)))
}

func (s *Service) cmdInfo(ctx context.Context, _ Message, _ string, respond Responder) error {
	var b strings.Builder
	b.WriteString("Snippet sandbox - available commands\n")
	for _, cmd := range s.router.Commands() {
		name := s.router.Prefix() + cmd.Name
		if cmd.Usage != "" {
			name += " " + cmd.Usage
		}
		fmt.Fprintf(&b, "%s - %s\n", name, cmd.Help)
		if len(cmd.Aliases) > 0 {
			fmt.Fprintf(&b, "  aliases: %s\n", strings.Join(cmd.Aliases, ", "))
		}
	}
	return respond.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (s *Service) bindings(msg Message) engine.Bindings {
	return engine.Bindings{
		Channel: engine.Entity{ID: msg.ChannelID},
		Author:  engine.Entity{ID: msg.UserID, Name: msg.UserName},
		Guild:   engine.Entity{ID: msg.GuildID},
		Message: engine.Entity{ID: msg.MessageID},
		Host: map[string]string{
			"name":    "snippet-sandbox",
			"timeout": s.engine.Timeout().String(),
		},
	}
}

func (s *Service) logAudit(userID int64, code, status, output, errorTrace string, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	s.audit.Log(&storage.SubmissionRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		CodeHash:   fmt.Sprintf("%x", sha256.Sum256([]byte(code))),
		Code:       code,
		Status:     status,
		Output:     output,
		ErrorTrace: errorTrace,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	})
}

// parseUserID accepts a plain integer id or a chat mention like <@123>.
func parseUserID(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "<@"), ">")
	if arg == "" {
		return 0, errors.New("empty user id")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", arg, err)
	}
	return id, nil
}
