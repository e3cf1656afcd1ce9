// Package device implements the receiving side of the schedule exchange:
// every delivery is parsed, validated, executed and acknowledged exactly once.
package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/ack"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
)

const publishTimeout = 10 * time.Second

type Flow struct {
	opts Options
	base context.Context
}

func NewFlow(opts Options) (*Flow, error) {
	if err := transport.ValidateDeviceID(opts.DeviceID); err != nil {
		return nil, err
	}
	if opts.Validator == nil || opts.Executor == nil || opts.Channel == nil {
		return nil, errors.New("device flow needs a validator, an executor and a channel")
	}
	return &Flow{opts: opts, base: context.Background()}, nil
}

func (f *Flow) DeviceID() string {
	return f.opts.DeviceID
}

// Start subscribes to the device's schedule topic. Deliveries use ctx as
// their parent context.
func (f *Flow) Start(ctx context.Context) error {
	f.base = ctx
	topic := transport.ScheduleTopic(f.opts.DeviceID)
	if err := f.opts.Channel.Subscribe(topic, f.onMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log.Printf("[DEVICE] %s listening on %s", f.opts.DeviceID, topic)
	return nil
}

func (f *Flow) Stop() error {
	return f.opts.Channel.Unsubscribe(transport.ScheduleTopic(f.opts.DeviceID))
}

func (f *Flow) onMessage(topic string, payload []byte) {
	f.Handle(f.base, topic, payload)
}

// Handle processes one delivery and returns the terminal acknowledgement it
// published. Every call produces exactly one terminal acknowledgement.
func (f *Flow) Handle(ctx context.Context, topic string, payload []byte) schedule.Acknowledgement {
	if f.opts.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.HandleTimeout)
		defer cancel()
	}

	d := delivery{flow: f, state: StateReceivedRaw}
	a := d.run(ctx, payload)

	if a.Status == schedule.StatusFailed {
		log.Printf("[DEVICE] %s rejected %s from %s: %s", f.opts.DeviceID, a.ScheduleID, topic, a.ErrorReason)
	} else {
		log.Printf("[DEVICE] %s applied %s", f.opts.DeviceID, a.ScheduleID)
	}
	f.publish(ctx, a)
	return a
}

// delivery is the per message state. It is never shared between calls.
type delivery struct {
	flow  *Flow
	state State
}

func (d *delivery) to(next State) {
	if d.flow.opts.Observe != nil {
		d.flow.opts.Observe(d.flow.opts.DeviceID, d.state, next)
	}
	d.state = next
}

func (d *delivery) run(ctx context.Context, payload []byte) schedule.Acknowledgement {
	f := d.flow
	acks := f.opts.Acks

	s, err := schedule.ParseSchedule(payload)
	if err != nil {
		d.to(StateDone)
		return acks.Build(nil, schedule.StatusFailed,
			ack.WithReason(err.Error()),
			ack.WithFallbackDeviceID(f.opts.DeviceID))
	}
	d.to(StateParsed)

	res := f.opts.Validator.Validate(s)
	limit := ack.WithLimit(res.EffectiveLimit)
	fallback := ack.WithFallbackDeviceID(f.opts.DeviceID)
	if !res.Valid {
		d.to(StateDone)
		return acks.Build(s, schedule.StatusFailed, ack.WithReason(res.Reason), limit, fallback)
	}

	if s.DeviceID != f.opts.DeviceID {
		d.to(StateDone)
		reason := fmt.Sprintf("device_id mismatch: schedule for %s delivered to %s", s.DeviceID, f.opts.DeviceID)
		return acks.Build(s, schedule.StatusFailed, ack.WithReason(reason), limit)
	}
	d.to(StateValidated)

	if f.opts.SendReceivedAck {
		f.publish(ctx, acks.Build(s, schedule.StatusReceived, limit))
	}

	d.to(StateExecuting)
	out := f.opts.Executor.Apply(ctx, s)
	d.to(StateDone)
	if !out.OK {
		return acks.Build(s, schedule.StatusFailed, ack.WithReason(out.Reason), limit)
	}
	return acks.Build(s, schedule.StatusApplied, ack.WithAppliedAt(nowFrom(acks)), limit)
}

func (f *Flow) publish(ctx context.Context, a schedule.Acknowledgement) {
	payload, err := a.Encode()
	if err != nil {
		log.Printf("[DEVICE] Failed to encode acknowledgement %s: %v", a.AckID, err)
		return
	}
	// the ack still goes out when the delivery itself ran out of time
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	// Acks travel on this device's own topic, whatever the payload claimed.
	if err := f.opts.Channel.Publish(pubCtx, transport.AckTopic(f.opts.DeviceID), payload); err != nil {
		log.Printf("[DEVICE] Failed to publish %s acknowledgement for %s: %v", a.Status, a.ScheduleID, err)
	}
}

func nowFrom(b ack.Builder) time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}
