package observability

import (
	"fmt"
	"time"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksRepaired      int            `json:"tasks_repaired"`
	TransitionsByState map[string]int `json:"transitions_by_state"`
	ChecklistItems     int            `json:"checklist_items_completed"`
	RateLimitWarnings  int            `json:"ratelimit_warnings"`
	CorruptionErrors   int            `json:"corruption_errors"`
	CacheRecoveries    int            `json:"cache_recoveries"`
	EventCount         int            `json:"event_count"`
	OldestEvent        *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		TransitionsByState: make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
		case "task.completed":
			m.TasksCompleted++
		case "task.repaired":
			m.TasksRepaired++
		case "task.state_changed":
			if to, ok := event.Data["to"].(string); ok {
				m.TransitionsByState[to]++
			}
		case "checklist.item_completed":
			m.ChecklistItems++
		case "ratelimit.warning":
			m.RateLimitWarnings++
		case "history.corruption":
			m.CorruptionErrors++
		case "cache.rollback":
			m.CacheRecoveries++
		}
	}

	return m, nil
}
