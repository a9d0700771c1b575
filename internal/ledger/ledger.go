// Package ledger keeps per-user execution accounting and a bounded
// history of recent submissions. It is an explicit state object owned by
// the service, guarded by a mutex so callers on any goroutine observe
// atomic updates.
package ledger

import (
	"sort"
	"strings"
	"sync"
	"time"

	"snippet-sandbox/internal/engine"
)

// MaxHistory bounds the history ring; the oldest entry is evicted first.
const MaxHistory = 100

// MaxRecent caps how many history entries a single query may return.
const MaxRecent = 10

// UserStats holds monotonically updated counters for one user. Created
// lazily on first observation and kept for the process lifetime.
type UserStats struct {
	Executions int
	Errors     int
	TotalTime  time.Duration
	FirstUse   time.Time
}

// SuccessRate returns the share of executions that did not error, as a
// percentage. Zero executions yields 0.
func (s UserStats) SuccessRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Executions-s.Errors) / float64(s.Executions) * 100
}

// AverageTime returns the mean execution duration.
func (s UserStats) AverageTime() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Executions)
}

// HistoryEntry records one completed submission.
type HistoryEntry struct {
	UserID    int64
	Code      string
	Summary   string
	Outcome   engine.OutcomeKind
	Timestamp time.Time
}

// LeaderboardEntry pairs a user with their stats for ranking output.
type LeaderboardEntry struct {
	UserID int64
	Stats  UserStats
}

// Ledger owns the stats map and history ring.
type Ledger struct {
	mu      sync.Mutex
	stats   map[int64]*UserStats
	order   []int64 // user ids in first-observation order, for stable ties
	history []HistoryEntry

	now func() time.Time // injectable clock for tests
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		stats: make(map[int64]*UserStats),
		now:   time.Now,
	}
}

// Record updates the submitting user's counters from an execution
// outcome and appends a history entry. Success counts an execution and
// its elapsed time; a runtime failure additionally counts an error.
// Timeouts are deliberately not recorded: a timed-out submission is
// neither an execution nor an error, and leaves no history entry.
func (l *Ledger) Record(userID int64, code string, out engine.Outcome) {
	if out.Kind == engine.OutcomeTimeout {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.statsLocked(userID)
	s.Executions++
	s.TotalTime += out.Elapsed
	if out.Kind == engine.OutcomeRuntimeFailure {
		s.Errors++
	}

	l.history = append(l.history, HistoryEntry{
		UserID:    userID,
		Code:      code,
		Summary:   summarize(code),
		Outcome:   out.Kind,
		Timestamp: l.now(),
	})
	if len(l.history) > MaxHistory {
		l.history = l.history[1:]
	}
}

// StatsFor returns the user's stats, creating a zeroed record with
// FirstUse set to now when the user has not been observed before.
func (l *Ledger) StatsFor(userID int64) UserStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.statsLocked(userID)
}

// Leaderboard returns up to topN users sorted by executions descending.
// Ties keep first-observation order (stable sort).
func (l *Ledger) Leaderboard(topN int) []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LeaderboardEntry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, LeaderboardEntry{UserID: id, Stats: *l.stats[id]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Stats.Executions > entries[j].Stats.Executions
	})

	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}

// Recent returns the last limit history entries, most recent first.
// The limit is capped at MaxRecent.
func (l *Ledger) Recent(limit int) []HistoryEntry {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.history)
	if limit > n {
		limit = n
	}

	out := make([]HistoryEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.history[i])
	}
	return out
}

// HistoryLen reports the current history size.
func (l *Ledger) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// TotalExecutions sums executions across all users.
func (l *Ledger) TotalExecutions() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for _, s := range l.stats {
		total += s.Executions
	}
	return total
}

func (l *Ledger) statsLocked(userID int64) *UserStats {
	s, ok := l.stats[userID]
	if !ok {
		s = &UserStats{FirstUse: l.now()}
		l.stats[userID] = s
		l.order = append(l.order, userID)
	}
	return s
}

// summarize produces a one-line code preview for history rendering.
func summarize(code string) string {
	const max = 50

	line := code
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i] + " ..."
	}
	if len(line) > max {
		line = line[:max] + "..."
	}
	return line
}
