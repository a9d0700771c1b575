package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"snippet-sandbox/internal/bot"
	"snippet-sandbox/internal/monitor"
)

func newTestHandlers() *Handlers {
	router := bot.NewRouter("!", nil)
	router.Register(&bot.Command{
		Name: "echo",
		Run: func(ctx context.Context, _ bot.Message, args string, respond bot.Responder) error {
			if err := respond.Reply(ctx, "working..."); err != nil {
				return err
			}
			return respond.Reply(ctx, "echo: "+args)
		},
	})
	return NewHandlers(router, nil, monitor.NewMetrics())
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleCommand_RepliesInOrder(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleCommand, CommandRequest{
		Message: bot.Message{UserID: 1, Content: "!echo hello"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Handled {
		t.Error("Handled = false, want true")
	}
	if len(resp.Replies) != 2 || resp.Replies[0] != "working..." || resp.Replies[1] != "echo: hello" {
		t.Errorf("Replies = %v, want status line then result", resp.Replies)
	}
}

func TestHandleCommand_UnhandledMessage(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleCommand, CommandRequest{
		Message: bot.Message{UserID: 1, Content: "just chatting"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Handled {
		t.Error("Handled = true for a non-command message")
	}
	if len(resp.Replies) != 0 {
		t.Errorf("Replies = %v, want none", resp.Replies)
	}
}

func TestHandleCommand_ValidationErrors(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"empty body", map[string]string{}, http.StatusBadRequest},
		{"missing user id", CommandRequest{Message: bot.Message{Content: "!echo"}}, http.StatusBadRequest},
		{"missing content", CommandRequest{Message: bot.Message{UserID: 1}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleCommand, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleCommand_InvalidJSON(t *testing.T) {
	h := newTestHandlers()

	req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleCommand(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestSubmissionEndpoints_NoDatabase(t *testing.T) {
	h := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
	rec := httptest.NewRecorder()
	h.HandleListSubmissions(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("list: got status %d, want 503", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/submissions/abc", nil)
	req.SetPathValue("id", "abc")
	rec = httptest.NewRecorder()
	h.HandleGetSubmission(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("get: got status %d, want 503", rec.Code)
	}

	var resp ErrorResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Code != "DB_UNAVAILABLE" {
		t.Errorf("got code %q, want DB_UNAVAILABLE", resp.Code)
	}
}
