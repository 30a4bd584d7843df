package instrumentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/teemow/expenses-mcp/internal/logging"
)

const testUserID = "00000000-0000-0000-0000-00000000beef"

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	return m
}

func TestInvocationRecord_Complete(t *testing.T) {
	r := NewInvocationRecord("tool", DefaultToolMethod, "add_user_expense")
	if r.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	r.Complete(false, errors.New("amount must be positive"))
	if r.Success {
		t.Error("Success should be false")
	}
	if r.Error != "amount must be positive" {
		t.Errorf("Error = %q", r.Error)
	}
	if r.Status() != StatusError {
		t.Errorf("Status = %q, want error", r.Status())
	}
	if r.Duration < 0 {
		t.Error("Duration should not be negative")
	}
}

func TestAuditLogger_AnonymizesByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true})

	r := NewInvocationRecord("tool", DefaultToolMethod, "get_user_expenses").WithUser(testUserID)
	al.LogInvocation(r.Complete(true, nil))

	m := decodeLine(t, &buf)
	if m["msg"] != "mcp_invocation" {
		t.Errorf("msg = %v", m["msg"])
	}
	if _, ok := m["user_id"]; ok {
		t.Error("raw user id must not be logged without PII opt-in")
	}
	if m[logging.KeyUserHash] != logging.AnonymizeUser(testUserID) {
		t.Errorf("user_hash = %v", m[logging.KeyUserHash])
	}
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludePII: true})

	r := NewInvocationRecord("resource", DefaultResourceMethod, "user://session").WithUser(testUserID)
	al.LogInvocation(r.Complete(false, errors.New("boom")))

	m := decodeLine(t, &buf)
	if m["msg"] != "mcp_invocation_failed" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["level"] != "WARN" {
		t.Errorf("level = %v", m["level"])
	}
	if m["user_id"] != testUserID {
		t.Errorf("user_id = %v", m["user_id"])
	}
	if m["error"] != "boom" {
		t.Errorf("error = %v", m["error"])
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogInvocation(NewInvocationRecord("tool", "", "x").Complete(true, nil))
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogInvocation(NewInvocationRecord("tool", "", "x"))
}
