package issuer

import (
	"fmt"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

// Planner decides the power setpoints of one device for one planning period.
// It returns one value per half hour, 48 in total.
type Planner interface {
	Plan(deviceID, period string) ([]float64, error)
}

type Window struct {
	Start   schedule.TimeOfDay
	End     schedule.TimeOfDay
	PowerKW float64
}

// WindowPlanner applies the same daily windows to every device: charge
// overnight, discharge in the evening peak, idle otherwise.
type WindowPlanner struct {
	Windows []Window
}

func DefaultWindows() []Window {
	return []Window{
		{Start: schedule.NewTimeOfDay(2, 0, 0), End: schedule.NewTimeOfDay(6, 0, 0), PowerKW: 10},
		{Start: schedule.NewTimeOfDay(18, 0, 0), End: schedule.NewTimeOfDay(21, 0, 0), PowerKW: -15},
	}
}

// NewWindowPlanner builds a planner from the configured windows, falling
// back to DefaultWindows when none are configured.
func NewWindowPlanner(windows []config.PlanWindow) (*WindowPlanner, error) {
	if len(windows) == 0 {
		return &WindowPlanner{Windows: DefaultWindows()}, nil
	}
	p := &WindowPlanner{}
	for i, w := range windows {
		start, err := schedule.ParseTimeOfDay(w.Start)
		if err != nil {
			return nil, fmt.Errorf("plan window %d: %w", i, err)
		}
		end, err := schedule.ParseTimeOfDay(w.End)
		if err != nil {
			return nil, fmt.Errorf("plan window %d: %w", i, err)
		}
		p.Windows = append(p.Windows, Window{Start: start, End: end, PowerKW: w.PowerKW})
	}
	return p, nil
}

// Plan ignores device and period, the windows repeat daily. The first
// matching window wins.
func (p *WindowPlanner) Plan(deviceID, period string) ([]float64, error) {
	starts := schedule.HalfHourStarts()
	values := make([]float64, len(starts))
	for i, start := range starts {
		for _, w := range p.Windows {
			if start >= w.Start && start < w.End {
				values[i] = w.PowerKW
				break
			}
		}
	}
	return values, nil
}
