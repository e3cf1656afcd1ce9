// Package schedule holds the wire contract exchanged between the issuer and
// the battery devices: schedules, their intervals and acknowledgements.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Schedule is one planning period worth of power setpoints for a device.
// It is created once by the issuer and never modified afterwards.
type Schedule struct {
	ScheduleID string     `json:"schedule_id"`
	DeviceID   string     `json:"device_id"`
	Version    string     `json:"version"`
	Intervals  []Interval `json:"intervals"`
	IssuedAt   time.Time  `json:"issued_at"`
	MaxPowerKW *float64   `json:"max_power_kw,omitempty"`
}

// Interval is a single setpoint. PowerKW is the source of truth,
// Mode is informational and must agree with the sign of PowerKW.
type Interval struct {
	StartTime *TimeOfDay `json:"start_time,omitempty"`
	PowerKW   *float64   `json:"power_kw,omitempty"`
	Mode      Mode       `json:"mode,omitempty"`

	// Decode problems are kept so the validator can report them by index.
	startTimeErr error
	powerErr     error
}

type Mode string

const (
	ModeCharge    Mode = "CHARGE"
	ModeDischarge Mode = "DISCHARGE"
	ModeIdle      Mode = "IDLE"
)

// TimeOfDay is a wall clock time with second precision, stored as seconds
// since midnight.
type TimeOfDay int32

const secondsPerDay = 24 * 60 * 60

func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// ParseTimeOfDay parses HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM:SS", s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return (int(t) % 3600) / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

func (t TimeOfDay) Seconds() int { return int(t) }

func (t TimeOfDay) Valid() bool { return t >= 0 && t < secondsPerDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts intervals with a malformed start_time or a
// non-numeric power_kw and records the problem instead of failing the
// whole payload.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartTime json.RawMessage `json:"start_time"`
		PowerKW   json.RawMessage `json:"power_kw"`
		Mode      Mode            `json:"mode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*iv = Interval{Mode: raw.Mode}

	if present(raw.StartTime) {
		var start TimeOfDay
		if err := json.Unmarshal(raw.StartTime, &start); err != nil {
			iv.startTimeErr = err
		} else {
			iv.StartTime = &start
		}
	}

	if present(raw.PowerKW) {
		var power float64
		if err := json.Unmarshal(raw.PowerKW, &power); err != nil {
			iv.powerErr = fmt.Errorf("power_kw must be numeric, got %s", string(raw.PowerKW))
		} else {
			iv.PowerKW = &power
		}
	}
	return nil
}

// StartTimeErr reports a start_time that was present but could not be read.
func (iv Interval) StartTimeErr() error { return iv.startTimeErr }

// PowerErr reports a power_kw that was present but not a number.
func (iv Interval) PowerErr() error { return iv.powerErr }

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
