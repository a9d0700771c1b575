package api

import "snippet-sandbox/internal/bot"

// CommandRequest is one chat message forwarded by a transport bridge.
type CommandRequest struct {
	Message bot.Message `json:"message"`
}

// CommandResponse carries the rendered replies back to the bridge in
// the order they were produced.
type CommandResponse struct {
	Handled   bool     `json:"handled"`
	Replies   []string `json:"replies"`
	RequestID string   `json:"request_id"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Database   bool   `json:"database"`
	Executions int    `json:"executions"`
	Uptime     string `json:"uptime"`
}
