package ledger

import (
	"fmt"
	"testing"
	"time"

	"snippet-sandbox/internal/engine"
)

func success(elapsed time.Duration) engine.Outcome {
	return engine.Outcome{Kind: engine.OutcomeSuccess, Stdout: "ok\n", Elapsed: elapsed}
}

func failure(elapsed time.Duration) engine.Outcome {
	return engine.Outcome{Kind: engine.OutcomeRuntimeFailure, ErrorTrace: "boom", Elapsed: elapsed}
}

func TestRecordArithmetic(t *testing.T) {
	l := New()

	l.Record(1, `print("a")`, success(100*time.Millisecond))
	l.Record(1, `error("x")`, failure(200*time.Millisecond))

	s := l.StatsFor(1)
	if s.Executions != 2 {
		t.Errorf("Executions = %d, want 2", s.Executions)
	}
	if s.Errors != 1 {
		t.Errorf("Errors = %d, want 1", s.Errors)
	}
	if s.TotalTime != 300*time.Millisecond {
		t.Errorf("TotalTime = %s, want 300ms", s.TotalTime)
	}
	if s.Executions < s.Errors {
		t.Error("invariant violated: executions < errors")
	}
}

func TestTimeoutNotRecorded(t *testing.T) {
	l := New()

	l.Record(1, `while true do end`, engine.Outcome{Kind: engine.OutcomeTimeout, Elapsed: 30 * time.Second})

	s := l.StatsFor(1)
	if s.Executions != 0 || s.Errors != 0 || s.TotalTime != 0 {
		t.Errorf("timeout mutated stats: %+v", s)
	}
	if l.HistoryLen() != 0 {
		t.Errorf("timeout appended history, len = %d", l.HistoryLen())
	}
}

func TestStatsForCreatesLazily(t *testing.T) {
	l := New()

	before := time.Now()
	s := l.StatsFor(77)
	after := time.Now()

	if s.Executions != 0 || s.Errors != 0 {
		t.Errorf("fresh stats not zeroed: %+v", s)
	}
	if s.FirstUse.Before(before) || s.FirstUse.After(after) {
		t.Errorf("FirstUse = %s, want between %s and %s", s.FirstUse, before, after)
	}

	// A later read returns the same record, not a new FirstUse.
	s2 := l.StatsFor(77)
	if !s2.FirstUse.Equal(s.FirstUse) {
		t.Error("FirstUse changed on second read")
	}
}

func TestHistoryBound(t *testing.T) {
	l := New()

	for i := 0; i < MaxHistory+1; i++ {
		l.Record(1, fmt.Sprintf("print(%d)", i), success(time.Millisecond))
	}

	if l.HistoryLen() != MaxHistory {
		t.Fatalf("history len = %d, want %d", l.HistoryLen(), MaxHistory)
	}

	recent := l.Recent(1)
	if recent[0].Code != fmt.Sprintf("print(%d)", MaxHistory) {
		t.Errorf("newest entry = %q, want the last appended", recent[0].Code)
	}

	// Entry 0 must be the evicted one: the oldest retrievable is entry 1...
	// Recent is capped, so verify via a full sweep of what remains.
	all := l.Recent(MaxRecent)
	for _, e := range all {
		if e.Code == "print(0)" {
			t.Error("oldest entry was not evicted")
		}
	}
}

func TestRecentOrderAndCap(t *testing.T) {
	l := New()

	for i := 0; i < 20; i++ {
		l.Record(1, fmt.Sprintf("print(%d)", i), success(time.Millisecond))
	}

	recent := l.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("len = %d, want 5", len(recent))
	}
	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("print(%d)", 19-i)
		if recent[i].Code != want {
			t.Errorf("recent[%d].Code = %q, want %q", i, recent[i].Code, want)
		}
	}

	capped := l.Recent(50)
	if len(capped) != MaxRecent {
		t.Errorf("limit not capped: len = %d, want %d", len(capped), MaxRecent)
	}

	defaulted := l.Recent(0)
	if len(defaulted) != MaxRecent {
		t.Errorf("zero limit len = %d, want %d", len(defaulted), MaxRecent)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	l := New()

	// Users observed in order 10, 20, 30 with executions 5, 5, 2.
	for i := 0; i < 5; i++ {
		l.Record(10, "print(1)", success(time.Millisecond))
	}
	for i := 0; i < 5; i++ {
		l.Record(20, "print(1)", success(time.Millisecond))
	}
	for i := 0; i < 2; i++ {
		l.Record(30, "print(1)", success(time.Millisecond))
	}

	board := l.Leaderboard(10)
	if len(board) != 3 {
		t.Fatalf("len = %d, want 3", len(board))
	}

	wantOrder := []int64{10, 20, 30}
	for i, want := range wantOrder {
		if board[i].UserID != want {
			t.Errorf("board[%d].UserID = %d, want %d", i, board[i].UserID, want)
		}
	}

	truncated := l.Leaderboard(2)
	if len(truncated) != 2 {
		t.Errorf("topN truncation failed: len = %d, want 2", len(truncated))
	}
}

func TestSuccessRateAndAverage(t *testing.T) {
	l := New()
	l.Record(1, "print(1)", success(100*time.Millisecond))
	l.Record(1, "error()", failure(300*time.Millisecond))

	s := l.StatsFor(1)
	if got := s.SuccessRate(); got != 50 {
		t.Errorf("SuccessRate = %v, want 50", got)
	}
	if got := s.AverageTime(); got != 200*time.Millisecond {
		t.Errorf("AverageTime = %s, want 200ms", got)
	}

	var zero UserStats
	if zero.SuccessRate() != 0 || zero.AverageTime() != 0 {
		t.Error("zero-execution stats should not divide by zero")
	}
}

func TestTotalExecutions(t *testing.T) {
	l := New()
	l.Record(1, "print(1)", success(time.Millisecond))
	l.Record(2, "print(1)", success(time.Millisecond))
	l.Record(2, "print(1)", success(time.Millisecond))

	if got := l.TotalExecutions(); got != 3 {
		t.Errorf("TotalExecutions = %d, want 3", got)
	}
}

func TestSummarize(t *testing.T) {
	l := New()
	l.Record(1, "local x = 1\nprint(x)", success(time.Millisecond))

	e := l.Recent(1)[0]
	if e.Summary != "local x = 1 ..." {
		t.Errorf("Summary = %q, want first line with ellipsis", e.Summary)
	}
}
