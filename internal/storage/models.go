package storage

import "time"

// SubmissionRecord is the durable audit row for one execution.
type SubmissionRecord struct {
	ID         string    `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	CodeHash   string    `json:"code_hash" db:"code_hash"`
	Code       string    `json:"code" db:"code"`
	Status     string    `json:"status" db:"status"` // success, error, timeout, rejected
	Output     string    `json:"output" db:"output"`
	ErrorTrace string    `json:"error_trace" db:"error_trace"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SubmissionFilter provides criteria for querying the audit log.
type SubmissionFilter struct {
	UserID int64
	Status string
	Limit  int
	Offset int
}
