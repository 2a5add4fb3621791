package observability

import (
	"testing"
	"time"
)

func TestMetrics_CalculateAggregatesByType(t *testing.T) {
	log, _ := newTestEventLog(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	write := func(offset time.Duration, typ string, data map[string]any) {
		t.Helper()
		if err := log.Write(Event{Time: base.Add(offset), Level: "INFO", Type: typ, Data: data}); err != nil {
			t.Fatal(err)
		}
	}

	write(0, "task.created", map[string]any{"task_id": "TASK-00001"})
	write(1*time.Minute, "task.state_changed", map[string]any{"to": "DESIGNING"})
	write(2*time.Minute, "task.state_changed", map[string]any{"to": "IMPLEMENTING"})
	write(3*time.Minute, "task.state_changed", map[string]any{"to": "DESIGNING"})
	write(4*time.Minute, "checklist.item_completed", nil)
	write(5*time.Minute, "ratelimit.warning", nil)
	write(6*time.Minute, "history.corruption", map[string]any{"task_id": "TASK-00001"})
	write(7*time.Minute, "task.repaired", map[string]any{"task_id": "TASK-00001"})
	write(8*time.Minute, "cache.rollback", nil)
	write(9*time.Minute, "task.completed", map[string]any{"task_id": "TASK-00001"})

	m, err := NewMetricsCalculator(log).Calculate(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.EventCount != 10 {
		t.Fatalf("expected 10 events, got %d", m.EventCount)
	}
	if m.TasksCreated != 1 || m.TasksCompleted != 1 || m.TasksRepaired != 1 {
		t.Fatalf("unexpected task counters: %+v", m)
	}
	if m.ChecklistItems != 1 || m.RateLimitWarnings != 1 || m.CorruptionErrors != 1 || m.CacheRecoveries != 1 {
		t.Fatalf("unexpected counters: %+v", m)
	}
	if m.TransitionsByState["DESIGNING"] != 2 || m.TransitionsByState["IMPLEMENTING"] != 1 {
		t.Fatalf("unexpected transitions: %+v", m.TransitionsByState)
	}
	if m.OldestEvent == nil || !m.OldestEvent.Equal(base) {
		t.Fatalf("unexpected oldest event: %v", m.OldestEvent)
	}
	if m.NewestEvent == nil || !m.NewestEvent.Equal(base.Add(9*time.Minute)) {
		t.Fatalf("unexpected newest event: %v", m.NewestEvent)
	}
}

func TestMetrics_CalculateHonorsSince(t *testing.T) {
	log, _ := newTestEventLog(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := log.Write(Event{
			Time: base.Add(time.Duration(i) * time.Hour),
			Type: "task.created",
			Data: map[string]any{"task_id": "x"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	m, err := NewMetricsCalculator(log).Calculate(base.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TasksCreated != 2 {
		t.Fatalf("expected 2 events inside the window, got %d", m.TasksCreated)
	}
}

func TestMetrics_CalculateEmptyLog(t *testing.T) {
	log, _ := newTestEventLog(t)

	m, err := NewMetricsCalculator(log).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.EventCount != 0 {
		t.Fatalf("expected 0 events, got %d", m.EventCount)
	}
	if m.OldestEvent != nil || m.NewestEvent != nil {
		t.Fatalf("expected no event boundaries, got %v / %v", m.OldestEvent, m.NewestEvent)
	}
}
