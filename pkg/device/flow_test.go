package device

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/ack"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/executor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

type harness struct {
	flow    *Flow
	channel *transport.MemoryChannel
	calls   *int32
	states  []State
}

func newHarness(t *testing.T, apply executor.ControllerFunc, mutate ...func(*Options)) *harness {
	t.Helper()
	v, err := validator.New(validator.DefaultProfile())
	require.NoError(t, err)

	h := &harness{channel: transport.NewMemoryChannel(), calls: new(int32)}
	counting := executor.ControllerFunc(func(ctx context.Context, s *schedule.Schedule) (bool, error) {
		atomic.AddInt32(h.calls, 1)
		return apply(ctx, s)
	})

	ids := 0
	opts := Options{
		DeviceID:  "pi-1",
		Validator: v,
		Executor:  executor.NewAdapter(counting),
		Channel:   h.channel,
		Acks: ack.Builder{
			Now:   func() time.Time { return fixedNow },
			NewID: func() string { ids++; return "ack-" + string(rune('0'+ids)) },
		},
		Observe: func(_ string, _, to State) { h.states = append(h.states, to) },
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.flow, err = NewFlow(opts)
	require.NoError(t, err)
	return h
}

func accept(context.Context, *schedule.Schedule) (bool, error) { return true, nil }

func payloadFor(t *testing.T, mutate func(m map[string]any)) []byte {
	t.Helper()
	intervals := make([]map[string]any, 0, 48)
	for _, start := range schedule.HalfHourStarts() {
		intervals = append(intervals, map[string]any{"start_time": start.String(), "power_kw": 10.0})
	}
	m := map[string]any{
		"schedule_id":  "2026-10-20",
		"device_id":    "pi-1",
		"version":      "1.0",
		"intervals":    intervals,
		"issued_at":    "2026-10-19T13:59:00Z",
		"max_power_kw": 50.0,
	}
	if mutate != nil {
		mutate(m)
	}
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	return payload
}

func (h *harness) acksOn(t *testing.T, deviceID string) []schedule.Acknowledgement {
	t.Helper()
	var out []schedule.Acknowledgement
	for _, msg := range h.channel.PublishedTo(transport.AckTopic(deviceID)) {
		a, err := schedule.ParseAcknowledgement(msg.Payload)
		require.NoError(t, err)
		out = append(out, *a)
	}
	return out
}

func TestValidScheduleIsApplied(t *testing.T) {
	h := newHarness(t, accept)

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, nil))

	assert.Equal(t, schedule.StatusApplied, a.Status)
	assert.Equal(t, "2026-10-20", a.ScheduleID)
	assert.Equal(t, "pi-1", a.DeviceID)
	require.NotNil(t, a.AppliedAt)
	assert.Equal(t, fixedNow, *a.AppliedAt)
	require.NotNil(t, a.MaxPowerKWApplied)
	assert.Equal(t, 50.0, *a.MaxPowerKWApplied)
	assert.Empty(t, a.ErrorReason)
	assert.Equal(t, int32(1), *h.calls)

	published := h.acksOn(t, "pi-1")
	require.Len(t, published, 1)
	assert.Equal(t, a.AckID, published[0].AckID)
	assert.Equal(t, []State{StateParsed, StateValidated, StateExecuting, StateDone}, h.states)
}

func TestMissingScheduleID(t *testing.T) {
	h := newHarness(t, accept)

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, func(m map[string]any) {
		delete(m, "schedule_id")
	}))

	assert.Equal(t, schedule.StatusFailed, a.Status)
	assert.Contains(t, a.ErrorReason, "schedule_id")
	assert.Equal(t, schedule.UnknownID, a.ScheduleID)
	assert.Equal(t, int32(0), *h.calls)
	assert.Len(t, h.acksOn(t, "pi-1"), 1)
}

func TestUnknownVersionIsNotExecuted(t *testing.T) {
	h := newHarness(t, accept)

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, func(m map[string]any) {
		m["version"] = "9.9"
	}))

	assert.Equal(t, schedule.StatusFailed, a.Status)
	assert.Contains(t, a.ErrorReason, "unknown schema version: 9.9")
	assert.Equal(t, int32(0), *h.calls)
	assert.Equal(t, []State{StateParsed, StateDone}, h.states)
}

func TestPowerAboveLimit(t *testing.T) {
	h := newHarness(t, accept)

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, func(m map[string]any) {
		m["intervals"] = []map[string]any{{"start_time": "00:00:00", "power_kw": 60.0}}
	}))

	assert.Equal(t, schedule.StatusFailed, a.Status)
	assert.Contains(t, a.ErrorReason, "interval 0")
	assert.Contains(t, a.ErrorReason, "60")
	require.NotNil(t, a.MaxPowerKWApplied)
	assert.Equal(t, 50.0, *a.MaxPowerKWApplied)
	assert.Equal(t, int32(0), *h.calls)
}

func TestUnparseablePayload(t *testing.T) {
	h := newHarness(t, accept)

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", []byte("{not json"))

	assert.Equal(t, schedule.StatusFailed, a.Status)
	assert.Contains(t, a.ErrorReason, "parse error")
	assert.Equal(t, schedule.UnknownID, a.ScheduleID)
	assert.Equal(t, "pi-1", a.DeviceID)
	assert.Nil(t, a.MaxPowerKWApplied)
	assert.Len(t, h.acksOn(t, "pi-1"), 1)
	assert.Equal(t, []State{StateDone}, h.states)
}

func TestHardwareFailures(t *testing.T) {
	cases := map[string]struct {
		apply  executor.ControllerFunc
		reason string
	}{
		"rejected": {
			apply:  func(context.Context, *schedule.Schedule) (bool, error) { return false, nil },
			reason: "hardware rejected schedule",
		},
		"error": {
			apply:  func(context.Context, *schedule.Schedule) (bool, error) { return false, errors.New("bus timeout") },
			reason: "hardware error: bus timeout",
		},
		"panic": {
			apply:  func(context.Context, *schedule.Schedule) (bool, error) { panic("segfault in driver") },
			reason: "hardware error: segfault in driver",
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, c.apply)
			a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, nil))
			assert.Equal(t, schedule.StatusFailed, a.Status)
			assert.Equal(t, c.reason, a.ErrorReason)
			assert.Nil(t, a.AppliedAt)
			assert.Len(t, h.acksOn(t, "pi-1"), 1)
		})
	}
}

func TestDeviceMismatchIsNotExecuted(t *testing.T) {
	h := newHarness(t, accept)

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, func(m map[string]any) {
		m["device_id"] = "pi-2"
	}))

	assert.Equal(t, schedule.StatusFailed, a.Status)
	assert.Contains(t, a.ErrorReason, "device_id mismatch")
	assert.Equal(t, int32(0), *h.calls)
	assert.Len(t, h.acksOn(t, "pi-1"), 1)
	assert.Empty(t, h.acksOn(t, "pi-2"))
}

func TestMismatchedDeviceIDNeverPicksTheAckTopic(t *testing.T) {
	h := newHarness(t, accept)
	var topics []string
	require.NoError(t, h.channel.Subscribe(transport.AckWildcard, func(topic string, _ []byte) {
		topics = append(topics, topic)
	}))

	for _, id := range []string{"pi-2/x", "+", "#"} {
		a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, func(m map[string]any) {
			m["device_id"] = id
		}))
		assert.Equal(t, schedule.StatusFailed, a.Status, id)
		assert.Contains(t, a.ErrorReason, "device_id mismatch", id)
	}

	assert.Equal(t, []string{"devices/pi-1/ack", "devices/pi-1/ack", "devices/pi-1/ack"}, topics)
	for _, msg := range h.channel.Published() {
		assert.True(t, msg.Topic == "devices/pi-1/ack" || msg.Topic == "devices/pi-1/schedule", msg.Topic)
	}
	assert.Equal(t, int32(0), *h.calls)
}

func TestDuplicateDeliveryAcknowledgedTwice(t *testing.T) {
	h := newHarness(t, accept)
	payload := payloadFor(t, nil)

	first := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payload)
	second := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payload)

	assert.Equal(t, first.ScheduleID, second.ScheduleID)
	assert.NotEqual(t, first.AckID, second.AckID)
	assert.Len(t, h.acksOn(t, "pi-1"), 2)
}

func TestReceivedMilestone(t *testing.T) {
	h := newHarness(t, accept, func(o *Options) { o.SendReceivedAck = true })

	h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, nil))

	published := h.acksOn(t, "pi-1")
	require.Len(t, published, 2)
	assert.Equal(t, schedule.StatusReceived, published[0].Status)
	assert.Equal(t, schedule.StatusApplied, published[1].Status)

	// no milestone for schedules that fail validation
	h.flow.Handle(context.Background(), "devices/pi-1/schedule", []byte("null"))
	assert.Len(t, h.acksOn(t, "pi-1"), 3)
}

func TestStartAndStop(t *testing.T) {
	h := newHarness(t, accept)
	require.NoError(t, h.flow.Start(context.Background()))

	require.NoError(t, h.channel.Publish(context.Background(), transport.ScheduleTopic("pi-1"), payloadFor(t, nil)))
	assert.Len(t, h.acksOn(t, "pi-1"), 1)

	require.NoError(t, h.flow.Stop())
	require.NoError(t, h.channel.Publish(context.Background(), transport.ScheduleTopic("pi-1"), payloadFor(t, nil)))
	assert.Len(t, h.acksOn(t, "pi-1"), 1)
}

type failingChannel struct{ transport.MemoryChannel }

func (*failingChannel) Publish(context.Context, string, []byte) error {
	return errors.New("broker unavailable")
}

func TestPublishFailureStillReturnsAck(t *testing.T) {
	h := newHarness(t, accept, func(o *Options) { o.Channel = &failingChannel{} })

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, nil))
	assert.Equal(t, schedule.StatusApplied, a.Status)
}

func TestHandleTimeoutStillAcknowledges(t *testing.T) {
	slow := func(ctx context.Context, _ *schedule.Schedule) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}
	h := newHarness(t, slow, func(o *Options) { o.HandleTimeout = 20 * time.Millisecond })

	a := h.flow.Handle(context.Background(), "devices/pi-1/schedule", payloadFor(t, nil))
	assert.Equal(t, schedule.StatusFailed, a.Status)
	assert.Contains(t, a.ErrorReason, "deadline exceeded")
	assert.Len(t, h.acksOn(t, "pi-1"), 1)
}

func TestNewFlowRequiresCollaborators(t *testing.T) {
	_, err := NewFlow(Options{DeviceID: "pi-1"})
	assert.Error(t, err)

	_, err = NewFlow(Options{DeviceID: "a/b"})
	assert.ErrorIs(t, err, transport.ErrInvalidTopic)
}
