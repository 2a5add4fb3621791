package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shadel/ai-workflow-core/pkg/models"
)

// WarningLevel grades a rate-limit warning.
type WarningLevel string

const (
	WarnStrong WarningLevel = "strong"
	WarnMild   WarningLevel = "mild"
)

// RateLimitWarning is the advisory signal that a transition happened
// suspiciously fast. It never blocks the transition.
type RateLimitWarning struct {
	Level   WarningLevel
	Elapsed time.Duration
	Message string
}

// RateLimitAdvisor emits non-blocking warnings for rapid transitions.
// Missing, unparseable, or future timestamps mean "insufficient
// information, assume legitimate" and produce no warning and no error.
type RateLimitAdvisor interface {
	Check(task *models.Task, now time.Time) *RateLimitWarning
}

type rateLimitAdvisor struct {
	enabled bool
}

// NewRateLimitAdvisor creates an advisor. Passing enabled=false (the
// configuration bypass for automation contexts) silences it entirely; there
// is no configuration that turns the advisor into a hard failure.
func NewRateLimitAdvisor(enabled bool) RateLimitAdvisor {
	return &rateLimitAdvisor{enabled: enabled}
}

// typicalDurations is the educational guidance shown with strong warnings.
var typicalDurations = []struct {
	state models.WorkflowState
	label string
}{
	{models.StateUnderstanding, "Understanding: 5-30 minutes"},
	{models.StateDesigning, "Design: 10-60 minutes"},
	{models.StateImplementing, "Implementation: 30-240 minutes"},
	{models.StateTesting, "Testing: 15-120 minutes"},
	{models.StateReviewing, "Review: 10-60 minutes"},
}

func (a *rateLimitAdvisor) Check(task *models.Task, now time.Time) *RateLimitWarning {
	if !a.enabled {
		return nil
	}

	enteredAt, err := time.Parse(time.RFC3339, task.Workflow.StateEnteredAt)
	if err != nil {
		// No usable timestamp: proceed silently.
		return nil
	}
	if enteredAt.After(now) {
		// Clock skew: proceed silently.
		return nil
	}

	elapsed := now.Sub(enteredAt)
	switch {
	case elapsed < time.Minute:
		return &RateLimitWarning{
			Level:   WarnStrong,
			Elapsed: elapsed,
			Message: strongWarningMessage(task.Workflow.CurrentState, elapsed),
		}
	case elapsed < 5*time.Minute:
		return &RateLimitWarning{
			Level:   WarnMild,
			Elapsed: elapsed,
			Message: fmt.Sprintf("Quick transition: only %d minute(s) in %s. Double-check the work before moving on.",
				int(elapsed.Minutes()), task.Workflow.CurrentState),
		}
	default:
		return nil
	}
}

func strongWarningMessage(state models.WorkflowState, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RAPID STATE CHANGE: only %d seconds spent in %s.\n", int(elapsed.Seconds()), state)
	b.WriteString("Typical time per state:\n")
	for _, g := range typicalDurations {
		fmt.Fprintf(&b, "  %s\n", g.label)
	}
	b.WriteString("Are you sure the work is complete?")
	return b.String()
}
