package executor

import (
	"context"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

// Controller applies a validated schedule to the battery hardware.
// It returns false when the hardware refused the schedule.
type Controller interface {
	Apply(ctx context.Context, s *schedule.Schedule) (bool, error)
}

// ControllerFunc adapts a function to the Controller interface.
type ControllerFunc func(ctx context.Context, s *schedule.Schedule) (bool, error)

func (f ControllerFunc) Apply(ctx context.Context, s *schedule.Schedule) (bool, error) {
	return f(ctx, s)
}

// Outcome of an execution attempt. Reason and Err are set only when OK is false.
type Outcome struct {
	OK     bool
	Reason string
	Err    error
}
