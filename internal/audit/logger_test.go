package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"session-core/internal/audit/domain"
)

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	failAll bool
}

func (r *memAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("boom")
	}
	r.entries = append(r.entries, entry)
	return nil
}

func TestLogger_LogEvent(t *testing.T) {
	repo := &memAuditRepo{}
	l := NewLogger(repo, func(context.Context) string { return "10.0.0.1" }, nil)

	l.LogEvent(context.Background(), "u1", "create", "session", "h1")

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.UserID != "u1" || e.Action != "create" || e.Resource != "session" || e.IP != "10.0.0.1" {
		t.Errorf("entry = %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Error("entry missing ID or timestamp")
	}
}

func TestLogger_BestEffort(t *testing.T) {
	l := NewLogger(&memAuditRepo{failAll: true}, nil, nil)
	// Must not panic or propagate the repository error.
	l.LogEvent(context.Background(), "u1", "revoke", "session", "")
}

func TestLogger_NilRepo(t *testing.T) {
	l := NewLogger(nil, nil, nil)
	l.LogEvent(context.Background(), "u1", "create", "session", "")
}

func TestLogger_NilIPExtractor(t *testing.T) {
	repo := &memAuditRepo{}
	l := NewLogger(repo, nil, nil)
	l.LogEvent(context.Background(), "u1", "create", "session", "")
	if repo.entries[0].IP != "unknown" {
		t.Errorf("IP = %q, want unknown", repo.entries[0].IP)
	}
}
