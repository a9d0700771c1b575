package bot

import (
	"fmt"
	"strings"
	"time"

	"snippet-sandbox/internal/engine"
	"snippet-sandbox/internal/ledger"
)

// CleanCode strips a surrounding markdown code fence (with or without a
// language tag) from a submission.
func CleanCode(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") && len(content) > 6 {
		lines := strings.Split(content, "\n")
		if len(lines) >= 2 {
			return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}
	return strings.Trim(content, "` \n")
}

// FormatCode wraps text in a fenced code block for chat rendering.
func FormatCode(code, language string) string {
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}

// Truncate shortens text to maxLen with an ellipsis.
func Truncate(text string, maxLen int) string {
	if len(text) > maxLen {
		return text[:maxLen-3] + "..."
	}
	return text
}

func renderOutcome(code string, out engine.Outcome, stats ledger.UserStats, timeout time.Duration) string {
	var b strings.Builder

	switch out.Kind {
	case engine.OutcomeSuccess:
		b.WriteString("Execution finished\n")
		b.WriteString("Input:\n")
		b.WriteString(FormatCode(Truncate(code, 512), "lua"))
		b.WriteString("\nOutput:\n")
		if out.Stdout != "" {
			b.WriteString(FormatCode(Truncate(out.Stdout, 512), ""))
		} else {
			b.WriteString("```\n(no output - did you forget print?)\n```")
		}
		fmt.Fprintf(&b, "\nExecution time: %.4fs | Total executions: %d",
			out.Elapsed.Seconds(), stats.Executions)

	case engine.OutcomeRuntimeFailure:
		b.WriteString("Runtime error\n")
		b.WriteString("Input:\n")
		b.WriteString(FormatCode(Truncate(code, 512), "lua"))
		if out.PartialStdout != "" {
			b.WriteString("\nPartial output:\n")
			b.WriteString(FormatCode(Truncate(out.PartialStdout, 512), ""))
		}
		b.WriteString("\nError:\n")
		b.WriteString(FormatCode(Truncate(out.ErrorTrace, 512), ""))
		fmt.Fprintf(&b, "\nExecution time: %.4fs", out.Elapsed.Seconds())

	case engine.OutcomeTimeout:
		fmt.Fprintf(&b, "Execution timeout: code took longer than %s to execute.", timeout)
	}

	return b.String()
}

func renderStats(userID int64, stats ledger.UserStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statistics for user %d\n", userID)
	fmt.Fprintf(&b, "Total executions: %d\n", stats.Executions)
	fmt.Fprintf(&b, "Total errors: %d\n", stats.Errors)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", stats.SuccessRate())
	fmt.Fprintf(&b, "Total execution time: %.2fs\n", stats.TotalTime.Seconds())
	fmt.Fprintf(&b, "Average execution time: %.4fs\n", stats.AverageTime().Seconds())
	fmt.Fprintf(&b, "First use: %s", stats.FirstUse.Format(time.RFC3339))
	return b.String()
}

func renderLeaderboard(entries []ledger.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "No execution data yet!"
	}

	var b strings.Builder
	b.WriteString("Execution leaderboard\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "#%d user %d - executions: %d | errors: %d\n",
			i+1, e.UserID, e.Stats.Executions, e.Stats.Errors)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(entries []ledger.HistoryEntry) string {
	if len(entries) == 0 {
		return "No execution history!"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent executions (last %d)\n", len(entries))
	for _, e := range entries {
		status := "ok"
		if e.Outcome == engine.OutcomeRuntimeFailure {
			status = "err"
		}
		fmt.Fprintf(&b, "[%s] user %d: %s\n", status, e.UserID, e.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
