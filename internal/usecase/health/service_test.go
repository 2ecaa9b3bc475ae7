package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

var errDown = errors.New("down")

// --- Tests ---

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		valkey     error
		sql        error
		embedding  error
		wantStatus Status
		wantFailed []string
	}{
		{name: "all healthy", wantStatus: Healthy},
		{name: "valkey down", valkey: errDown, wantStatus: Degraded, wantFailed: []string{"database"}},
		{name: "sql down", sql: errDown, wantStatus: Degraded, wantFailed: []string{"sql"}},
		{name: "embedding down", embedding: errDown, wantStatus: Degraded, wantFailed: []string{"embedding"}},
		{
			name: "everything down", valkey: errDown, sql: errDown, embedding: errDown,
			wantStatus: Unhealthy, wantFailed: []string{"database", "sql", "embedding"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(&mockPinger{err: tc.valkey}, &mockPinger{err: tc.sql}, &mockEmbeddingChecker{err: tc.embedding})
			r := svc.Check(context.Background())

			if r.Status != tc.wantStatus {
				t.Errorf("expected %q, got %q", tc.wantStatus, r.Status)
			}
			if len(r.Checks) != 3 {
				t.Fatalf("expected 3 checks, got %v", r.Checks)
			}

			failed := map[string]bool{}
			for _, name := range tc.wantFailed {
				failed[name] = true
			}
			for name, got := range r.Checks {
				want := CheckOK
				if failed[name] {
					want = CheckError
				}
				if got != want {
					t.Errorf("check %s: expected %q, got %q", name, want, got)
				}
			}
		})
	}
}

func TestCheck_OptionalComponents(t *testing.T) {
	r := New(&mockPinger{}, nil, nil).Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if len(r.Checks) != 1 || r.Checks["database"] != CheckOK {
		t.Errorf("expected only the database check, got %v", r.Checks)
	}
}

func TestCheck_OptionalComponents_DBError(t *testing.T) {
	r := New(&mockPinger{err: errDown}, nil, nil).Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if _, ok := r.Checks["sql"]; ok {
		t.Error("sql check should be absent when not configured")
	}
}
