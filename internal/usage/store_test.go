package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Record(ctx, Record{
		SessionID:        "sess-1",
		Model:            "gpt-4",
		PromptTokens:     100,
		CompletionTokens: 20,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	sum, err := s.SessionSummary(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionSummary: %v", err)
	}
	if sum.TotalRecords != 1 {
		t.Errorf("TotalRecords = %d, want 1", sum.TotalRecords)
	}
	if sum.TotalPromptTokens != 100 || sum.TotalCompletionTokens != 20 {
		t.Errorf("totals = %d/%d, want 100/20", sum.TotalPromptTokens, sum.TotalCompletionTokens)
	}
}

func TestSessionSummaryIsolatesSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, rec := range []Record{
		{SessionID: "a", Model: "gpt-4", PromptTokens: 10, CompletionTokens: 1},
		{SessionID: "a", Model: "gpt-4", PromptTokens: 20, CompletionTokens: 2},
		{SessionID: "b", Model: "gpt-4", PromptTokens: 500, CompletionTokens: 50},
	} {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := s.SessionSummary(ctx, "a")
	if err != nil {
		t.Fatalf("SessionSummary: %v", err)
	}
	if sum.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", sum.TotalRecords)
	}
	if sum.TotalPromptTokens != 30 {
		t.Errorf("TotalPromptTokens = %d, want 30", sum.TotalPromptTokens)
	}
}

func TestSummaryTimeRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{base, base.Add(time.Hour), base.Add(48 * time.Hour)} {
		err := s.Record(ctx, Record{
			Timestamp:        ts,
			SessionID:        "sess",
			Model:            "gpt-4",
			PromptTokens:     10 * (i + 1),
			CompletionTokens: i + 1,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := s.Summary(ctx, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", sum.TotalRecords)
	}
	if sum.TotalPromptTokens != 30 {
		t.Errorf("TotalPromptTokens = %d, want 30", sum.TotalPromptTokens)
	}
}

func TestEmptySummary(t *testing.T) {
	s := newTestStore(t)

	sum, err := s.SessionSummary(context.Background(), "missing")
	if err != nil {
		t.Fatalf("SessionSummary: %v", err)
	}
	if sum.TotalRecords != 0 || sum.TotalPromptTokens != 0 || sum.TotalCompletionTokens != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}
