package model

import (
	"errors"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestAuditComplete(t *testing.T) {
	start := time.Date(2019, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAudit(StartParams{UserID: 7, StoreID: 123, StoreDescription: "Main St"}, start)

	if !a.IsOpen() {
		t.Fatal("new audit should be open")
	}
	if a.AuditTypeID != AuditTypeStandard {
		t.Errorf("AuditTypeID = %v, want %v", a.AuditTypeID, AuditTypeStandard)
	}

	end := start.Add(90 * time.Minute)
	done, err := a.Complete(ptr(40.1), ptr(-75.2), end)
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if done.IsOpen() {
		t.Error("completed audit reports open")
	}
	if !a.IsOpen() {
		t.Error("Complete() mutated the receiver")
	}
	if got := done.Duration(); got != 90*time.Minute {
		t.Errorf("Duration() = %v, want 90m", got)
	}

	again, err := done.Complete(nil, nil, end.Add(time.Hour))
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second Complete() error = %v, want ErrAlreadyCompleted", err)
	}
	if !again.EndedAt.Equal(end) {
		t.Errorf("EndedAt changed to %v", again.EndedAt)
	}
}

func TestAuditReopen(t *testing.T) {
	start := time.Now()
	a := NewAudit(StartParams{UserID: 1, StoreID: 2}, start)

	if _, err := a.Reopen(); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("Reopen() on open audit error = %v, want ErrNotCompleted", err)
	}

	done, _ := a.Complete(ptr(1.0), ptr(2.0), start.Add(time.Minute))
	reopened, err := done.Reopen()
	if err != nil {
		t.Fatalf("Reopen() failed: %v", err)
	}
	if !reopened.IsOpen() || reopened.LatitudeAtEnd != nil || reopened.LongitudeAtEnd != nil {
		t.Errorf("Reopen() left end state: %+v", reopened)
	}
	if reopened.ID != a.ID || !reopened.StartedAt.Equal(a.StartedAt) {
		t.Error("Reopen() changed id or start time")
	}
}
