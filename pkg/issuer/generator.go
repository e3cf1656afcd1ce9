package issuer

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/capability"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/units"
)

// PeriodFor returns the planning period daysAhead days after t, in t's location.
func PeriodFor(t time.Time, daysAhead int) string {
	return t.AddDate(0, 0, daysAhead).Format(time.DateOnly)
}

// GenerateSchedule builds the schedule of one device for one period.
// The schedule id is the period itself and the intervals only depend on the
// planner, so generating twice yields the same id and intervals.
func (i *Issuer) GenerateSchedule(deviceID, period string, caps capability.Capabilities) (*schedule.Schedule, error) {
	if _, err := time.Parse(time.DateOnly, period); err != nil {
		return nil, fmt.Errorf("%w: %q, expected YYYY-MM-DD", ErrInvalidPeriod, period)
	}

	values, err := i.opts.Planner.Plan(deviceID, period)
	if err != nil {
		return nil, fmt.Errorf("plan %s for %s: %w", period, deviceID, err)
	}
	starts := schedule.HalfHourStarts()
	if len(values) != len(starts) {
		return nil, fmt.Errorf("plan %s for %s: got %d values, want %d", period, deviceID, len(values), len(starts))
	}

	limit := caps.MaxPowerKW
	if limit <= 0 {
		limit = i.opts.DefaultMaxPowerKW
	}

	intervals := make([]schedule.Interval, len(starts))
	for n, start := range starts {
		iv := schedule.NewInterval(start, units.ClampKW(units.RoundKW(values[n]), limit))
		if i.opts.IncludeMode {
			iv = iv.WithMode()
		}
		intervals[n] = iv
	}

	return &schedule.Schedule{
		ScheduleID: period,
		DeviceID:   deviceID,
		Version:    i.opts.Version,
		Intervals:  intervals,
		IssuedAt:   i.now().UTC().Truncate(time.Second),
		MaxPowerKW: schedule.Float(limit),
	}, nil
}
