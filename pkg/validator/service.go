// Package validator checks received schedules against the protocol and the
// device safety rules before anything reaches the hardware.
package validator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

type Validator struct {
	supported    map[string]VersionRules
	supportedStr string
	defaultLimit float64
}

func New(profile Profile) (*Validator, error) {
	if profile.DefaultMaxPowerKW <= 0 || math.IsNaN(profile.DefaultMaxPowerKW) || math.IsInf(profile.DefaultMaxPowerKW, 0) {
		return nil, fmt.Errorf("default max power must be a positive number, got %v", profile.DefaultMaxPowerKW)
	}
	if len(profile.SupportedVersions) == 0 {
		return nil, errors.New("at least one supported version is required")
	}
	rules := profile.Rules
	if rules == nil {
		rules = DefaultRules
	}

	supported := make(map[string]VersionRules, len(profile.SupportedVersions))
	for _, version := range profile.SupportedVersions {
		r, ok := rules[version]
		if !ok {
			return nil, fmt.Errorf("no validation rules for version %q", version)
		}
		if r.MaxIntervals < 1 {
			return nil, fmt.Errorf("version %q: max intervals must be at least 1", version)
		}
		supported[version] = r
	}

	versions := make([]string, 0, len(supported))
	for v := range supported {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	return &Validator{
		supported:    supported,
		supportedStr: strings.Join(versions, ", "),
		defaultLimit: profile.DefaultMaxPowerKW,
	}, nil
}

// Validate runs the checks in a fixed order and stops at the first failure.
func (v *Validator) Validate(s *schedule.Schedule) Result {
	limit := v.defaultLimit
	if s != nil && s.MaxPowerKW != nil {
		limit = *s.MaxPowerKW
	}

	if s == nil {
		return v.fail(limit, schedule.ErrSchema, "missing schedule")
	}

	switch {
	case s.ScheduleID == "":
		return v.fail(limit, schedule.ErrSchema, "missing required field: schedule_id")
	case s.DeviceID == "":
		return v.fail(limit, schedule.ErrSchema, "missing required field: device_id")
	case s.Version == "":
		return v.fail(limit, schedule.ErrSchema, "missing required field: version")
	case s.Intervals == nil:
		return v.fail(limit, schedule.ErrSchema, "missing required field: intervals")
	case s.IssuedAt.IsZero():
		return v.fail(limit, schedule.ErrSchema, "missing required field: issued_at")
	}

	rules, ok := v.supported[s.Version]
	if !ok {
		return v.fail(limit, schedule.ErrVersion,
			fmt.Sprintf("unknown schema version: %s (supported: %s)", s.Version, v.supportedStr))
	}

	if len(s.Intervals) == 0 {
		return v.fail(limit, schedule.ErrSchema, "intervals must be a non-empty array")
	}
	if len(s.Intervals) > rules.MaxIntervals {
		return v.fail(limit, schedule.ErrSchema,
			fmt.Sprintf("too many intervals: %d (max %d)", len(s.Intervals), rules.MaxIntervals))
	}

	if s.MaxPowerKW != nil && (!(limit > 0) || math.IsInf(limit, 0)) {
		return v.fail(limit, schedule.ErrSchema,
			fmt.Sprintf("max_power_kw must be a positive number, got %v", limit))
	}

	for i, iv := range s.Intervals {
		if res, failed := v.checkInterval(i, iv, limit); failed {
			return res
		}
	}

	return Result{Valid: true, EffectiveLimit: limit}
}

func (v *Validator) checkInterval(i int, iv schedule.Interval, limit float64) (Result, bool) {
	if err := iv.StartTimeErr(); err != nil {
		return v.fail(limit, schedule.ErrSchema, fmt.Sprintf("interval %d: invalid start_time: %v", i, err)), true
	}
	if iv.StartTime == nil {
		return v.fail(limit, schedule.ErrSchema, fmt.Sprintf("interval %d missing required field: start_time", i)), true
	}
	if !iv.StartTime.Valid() {
		return v.fail(limit, schedule.ErrSchema, fmt.Sprintf("interval %d: start_time out of range", i)), true
	}
	if err := iv.PowerErr(); err != nil {
		return v.fail(limit, schedule.ErrSafetyLimit, fmt.Sprintf("interval %d: %v", i, err)), true
	}
	if iv.PowerKW == nil {
		return v.fail(limit, schedule.ErrSchema, fmt.Sprintf("interval %d missing required field: power_kw", i)), true
	}

	power := *iv.PowerKW
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return v.fail(limit, schedule.ErrSafetyLimit, fmt.Sprintf("interval %d: power_kw must be numeric", i)), true
	}
	if math.Abs(power) > limit {
		return v.fail(limit, schedule.ErrSafetyLimit,
			fmt.Sprintf("interval %d: power_kw %v exceeds device limit (±%v kW)", i, power, limit)), true
	}
	if iv.Mode != "" {
		if expected := schedule.ModeFor(power); iv.Mode != expected {
			return v.fail(limit, schedule.ErrSafetyLimit,
				fmt.Sprintf("interval %d: mode %s does not match power_kw %v (expected %s)", i, iv.Mode, power, expected)), true
		}
	}
	return Result{}, false
}

func (v *Validator) fail(limit float64, kind error, reason string) Result {
	return Result{
		Valid:          false,
		Reason:         reason,
		EffectiveLimit: limit,
		Err:            schedule.NewProtocolError(kind, reason),
	}
}
