package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleKeepsMissingFieldsEmpty(t *testing.T) {
	payload := []byte(`{"device_id":"pi-1","version":"1.0","intervals":[{"start_time":"00:00:00","power_kw":10}],"issued_at":"2026-10-19T12:00:00Z"}`)

	s, err := ParseSchedule(payload)
	require.NoError(t, err)

	assert.Empty(t, s.ScheduleID)
	assert.Equal(t, "pi-1", s.DeviceID)
	require.Len(t, s.Intervals, 1)
	require.NotNil(t, s.Intervals[0].PowerKW)
	assert.Equal(t, 10.0, *s.Intervals[0].PowerKW)
	assert.Equal(t, NewTimeOfDay(0, 0, 0), *s.Intervals[0].StartTime)
	assert.Nil(t, s.MaxPowerKW)
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "   ", "null", "{not json", `["a"]`} {
		_, err := ParseSchedule([]byte(payload))
		require.Error(t, err, "payload %q", payload)
		assert.True(t, errors.Is(err, ErrParse))
		assert.Contains(t, err.Error(), "parse error")
	}
}

func TestIntervalRecordsBadValuesInsteadOfFailing(t *testing.T) {
	payload := []byte(`{"schedule_id":"2026-10-19","device_id":"pi-1","version":"1.0","issued_at":"2026-10-19T12:00:00Z",
		"intervals":[{"start_time":"25:61:00","power_kw":"lots"},{"power_kw":null}]}`)

	s, err := ParseSchedule(payload)
	require.NoError(t, err)
	require.Len(t, s.Intervals, 2)

	first := s.Intervals[0]
	assert.Nil(t, first.StartTime)
	assert.Error(t, first.StartTimeErr())
	assert.Nil(t, first.PowerKW)
	assert.ErrorContains(t, first.PowerErr(), "numeric")

	second := s.Intervals[1]
	assert.Nil(t, second.PowerKW)
	assert.NoError(t, second.PowerErr())
}

func TestEncodeIsCompactAndReadable(t *testing.T) {
	s := &Schedule{
		ScheduleID: "2026-10-19",
		DeviceID:   "pi-1",
		Version:    "1.1",
		Intervals:  []Interval{NewInterval(NewTimeOfDay(18, 30, 0), -15).WithMode()},
		IssuedAt:   time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		MaxPowerKW: Float(25),
	}

	payload, err := s.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "\n")
	assert.Contains(t, string(payload), `"start_time":"18:30:00"`)
	assert.Contains(t, string(payload), `"mode":"DISCHARGE"`)

	decoded, err := ParseSchedule(payload)
	require.NoError(t, err)
	assert.Equal(t, s.Intervals, decoded.Intervals)
	assert.True(t, s.IssuedAt.Equal(decoded.IssuedAt))
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeCharge, ModeFor(0.5))
	assert.Equal(t, ModeDischarge, ModeFor(-0.5))
	assert.Equal(t, ModeIdle, ModeFor(0))
}

func TestHalfHourStarts(t *testing.T) {
	starts := HalfHourStarts()
	require.Len(t, starts, 48)
	assert.Equal(t, "00:00:00", starts[0].String())
	assert.Equal(t, "00:30:00", starts[1].String())
	assert.Equal(t, "23:30:00", starts[47].String())
}

func TestParseAcknowledgement(t *testing.T) {
	ack, err := ParseAcknowledgement([]byte(`{"ack_id":"a","schedule_id":"s","device_id":"d","status":"APPLIED","timestamp":"2026-10-19T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, ack.Status)
	assert.True(t, ack.Status.Terminal())

	_, err = ParseAcknowledgement([]byte(`{"schedule_id":"s"}`))
	assert.ErrorIs(t, err, ErrParse)
}

func TestProtocolErrorUnwraps(t *testing.T) {
	err := NewProtocolError(ErrVersion, "unknown schema version: 9.9")
	assert.ErrorIs(t, err, ErrVersion)
	assert.Equal(t, "unknown schema version: 9.9", err.Error())
}
