package observability

import (
	"fmt"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	StaleStateHours  int `yaml:"stale_state_hours" json:"stale_state_hours"`
	MaxQueueSize     int `yaml:"max_queue_size" json:"max_queue_size"`
	RapidBurst       int `yaml:"rapid_burst" json:"rapid_burst"`
	RapidWindowHours int `yaml:"rapid_window_hours" json:"rapid_window_hours"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		StaleStateHours:  72,
		MaxQueueSize:     10,
		RapidBurst:       3,
		RapidWindowHours: 1,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
	}
}

// Evaluate reads events and checks all alert conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := time.Now().UTC()
	var alerts []Alert

	staleAlerts, err := ae.checkStaleState(now)
	if err != nil {
		return nil, fmt.Errorf("checking stale workflow state: %w", err)
	}
	alerts = append(alerts, staleAlerts...)

	queueAlerts, err := ae.checkQueueSize(now)
	if err != nil {
		return nil, fmt.Errorf("checking queue size: %w", err)
	}
	alerts = append(alerts, queueAlerts...)

	rapidAlerts, err := ae.checkRapidBurst(now)
	if err != nil {
		return nil, fmt.Errorf("checking rapid transitions: %w", err)
	}
	alerts = append(alerts, rapidAlerts...)

	corruptionAlerts, err := ae.checkCorruption(now)
	if err != nil {
		return nil, fmt.Errorf("checking corruption events: %w", err)
	}
	alerts = append(alerts, corruptionAlerts...)

	return alerts, nil
}

// checkStaleState fires when the active task has had no transition or
// checklist activity for longer than the threshold.
func (ae *alertEngine) checkStaleState(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	// Last activity per task, and whether the task was completed since.
	lastActivity := make(map[string]time.Time)
	completed := make(map[string]bool)
	for _, event := range events {
		taskID, _ := event.Data["task_id"].(string)
		if taskID == "" {
			continue
		}
		switch event.Type {
		case "task.created", "task.state_changed", "checklist.item_completed", "task.repaired":
			lastActivity[taskID] = event.Time
		case "task.completed":
			completed[taskID] = true
		}
	}

	threshold := time.Duration(ae.thresholds.StaleStateHours) * time.Hour
	var alerts []Alert
	for taskID, at := range lastActivity {
		if completed[taskID] {
			continue
		}
		if now.Sub(at) > threshold {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("stale-%s", taskID),
				Condition:   "workflow_state_stale",
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s has had no workflow activity for more than %d hours", taskID, ae.thresholds.StaleStateHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts, nil
}

// checkQueueSize approximates the waiting queue as created minus completed
// tasks and fires when it exceeds the threshold.
func (ae *alertEngine) checkQueueSize(now time.Time) ([]Alert, error) {
	created, err := ae.eventLog.Read(EventFilter{Type: "task.created"})
	if err != nil {
		return nil, err
	}
	done, err := ae.eventLog.Read(EventFilter{Type: "task.completed"})
	if err != nil {
		return nil, err
	}

	waiting := len(created) - len(done)
	if waiting > ae.thresholds.MaxQueueSize {
		return []Alert{{
			ID:          "queue-size",
			Condition:   "queue_too_large",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%d tasks are open, exceeding the limit of %d", waiting, ae.thresholds.MaxQueueSize),
			TriggeredAt: now,
		}}, nil
	}
	return nil, nil
}

// checkRapidBurst fires when rate-limit warnings cluster inside the
// configured window, suggesting states are being rushed through.
func (ae *alertEngine) checkRapidBurst(now time.Time) ([]Alert, error) {
	since := now.Add(-time.Duration(ae.thresholds.RapidWindowHours) * time.Hour)
	warnings, err := ae.eventLog.Read(EventFilter{Type: "ratelimit.warning", Since: &since})
	if err != nil {
		return nil, err
	}

	if len(warnings) >= ae.thresholds.RapidBurst {
		return []Alert{{
			ID:          "rapid-burst",
			Condition:   "rapid_transition_burst",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d rapid state changes in the last %d hour(s); workflow states may be rushed", len(warnings), ae.thresholds.RapidWindowHours),
			TriggeredAt: now,
		}}, nil
	}
	return nil, nil
}

// checkCorruption fires on any recorded history corruption. Corruption is
// an audit signal and always surfaces at high severity.
func (ae *alertEngine) checkCorruption(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{Type: "history.corruption"})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	latest := events[len(events)-1]
	taskID, _ := latest.Data["task_id"].(string)
	return []Alert{{
		ID:          "history-corruption",
		Condition:   "state_history_corruption",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("state history corruption detected %d time(s), most recently on task %s", len(events), taskID),
		TriggeredAt: now,
	}}, nil
}
