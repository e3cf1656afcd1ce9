package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseSchedule decodes a wire payload. Missing fields are left empty for the
// validator to report; only undecodable payloads fail here.
func ParseSchedule(payload []byte) (*Schedule, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, NewProtocolError(ErrParse, "parse error: empty payload")
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, NewProtocolError(ErrParse, "parse error: payload is null")
	}

	var s Schedule
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, NewProtocolError(ErrParse, fmt.Sprintf("parse error: %v", err))
	}
	return &s, nil
}

// Encode returns the compact JSON form used on the wire.
func (s *Schedule) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func ParseAcknowledgement(payload []byte) (*Acknowledgement, error) {
	var a Acknowledgement
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, NewProtocolError(ErrParse, fmt.Sprintf("parse error: %v", err))
	}
	if a.Status == "" {
		return nil, NewProtocolError(ErrParse, "parse error: acknowledgement without status")
	}
	return &a, nil
}

func (a Acknowledgement) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// ModeFor derives the informational mode tag from the power sign.
func ModeFor(powerKW float64) Mode {
	switch {
	case powerKW > 0:
		return ModeCharge
	case powerKW < 0:
		return ModeDischarge
	default:
		return ModeIdle
	}
}

func NewInterval(start TimeOfDay, powerKW float64) Interval {
	return Interval{StartTime: &start, PowerKW: &powerKW}
}

// WithMode returns a copy of the interval tagged with its derived mode.
func (iv Interval) WithMode() Interval {
	if iv.PowerKW != nil {
		iv.Mode = ModeFor(*iv.PowerKW)
	}
	return iv
}

// HalfHourStarts returns the 48 start times of a day split in half hours.
func HalfHourStarts() []TimeOfDay {
	starts := make([]TimeOfDay, 0, 48)
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 30} {
			starts = append(starts, NewTimeOfDay(hour, minute, 0))
		}
	}
	return starts
}

// Float returns a pointer to v, for optional fields.
func Float(v float64) *float64 {
	return &v
}
