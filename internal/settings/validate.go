package settings

import (
	"fmt"

	"github.com/goodtune/snuskoll/internal/storage"
)

// ValidationError reports the first invalid settings field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type bound struct {
	field    string
	value    float64
	min, max float64
}

// Validate checks settings ranges and goal-specific target rules.
func Validate(s storage.Settings) error {
	bounds := []bound{
		{"portions_per_can", float64(s.PortionsPerCan), 1, 50},
		{"daily_intake", float64(s.DailyIntake), 1, 50},
		{"cost_per_can", s.CostPerCan, 1, 1000},
		{"session_time", float64(s.SessionTime), 1, 120},
		{"wait_time", float64(s.WaitTime), 1, 240},
		{"nicotine_content", s.NicotineContent, 0, 50},
	}
	for _, b := range bounds {
		if b.value < b.min || b.value > b.max {
			return &ValidationError{
				Field:   b.field,
				Message: fmt.Sprintf("must be between %g and %g", b.min, b.max),
			}
		}
	}

	switch s.Goal {
	case storage.GoalQuit, storage.GoalReduce, storage.GoalTrack:
	default:
		return &ValidationError{Field: "goal", Message: "must be quit, reduce, or track"}
	}
	switch s.Pace {
	case storage.PaceFast, storage.PaceMedium, storage.PaceSlow:
	default:
		return &ValidationError{Field: "pace", Message: "must be fast, medium, or slow"}
	}

	if s.TargetDailyIntake < 0 || s.TargetSessionTime < 0 || s.TargetWaitTime < 0 {
		return &ValidationError{Field: "targets", Message: "must not be negative"}
	}

	if s.Goal == storage.GoalReduce {
		if s.TargetDailyIntake > 0 && s.TargetDailyIntake >= s.DailyIntake {
			return &ValidationError{Field: "target_daily_intake", Message: "must be lower than daily_intake"}
		}
		if s.TargetWaitTime > 0 && s.TargetWaitTime <= s.WaitTime {
			return &ValidationError{Field: "target_wait_time", Message: "must be higher than wait_time"}
		}
		if s.TargetSessionTime > 0 && s.TargetSessionTime >= s.SessionTime {
			return &ValidationError{Field: "target_session_time", Message: "must be lower than session_time"}
		}
	}

	return nil
}
