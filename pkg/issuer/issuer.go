// Package issuer is the publishing side of the schedule exchange: it builds
// schedules from device capabilities, publishes them, collects the
// acknowledgements and republishes schedules nobody answered.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
)

const (
	defaultAckTimeout = 5 * time.Minute
	maxRepublishDelay = 6 * time.Hour
)

type Issuer struct {
	opts Options
	base context.Context
}

func New(opts Options) (*Issuer, error) {
	if opts.Capabilities == nil || opts.Planner == nil || opts.Validator == nil ||
		opts.Channel == nil || opts.Store == nil {
		return nil, errors.New("issuer needs capabilities, a planner, a validator, a channel and a store")
	}
	if opts.Version == "" {
		return nil, errors.New("issuer needs a protocol version")
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.MaxPublishAttempts <= 0 {
		opts.MaxPublishAttempts = 1
	}
	if opts.DefaultMaxPowerKW <= 0 {
		opts.DefaultMaxPowerKW = validator.DefaultMaxPowerKW
	}
	return &Issuer{opts: opts, base: context.Background()}, nil
}

func (i *Issuer) now() time.Time {
	if i.opts.Now != nil {
		return i.opts.Now()
	}
	return time.Now()
}

// BuildAndPublish generates, validates, journals and publishes the schedule
// of one device. Nothing is published when any step before it fails.
func (i *Issuer) BuildAndPublish(ctx context.Context, deviceID, period string) (*schedule.Schedule, error) {
	if err := transport.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	caps, err := i.opts.Capabilities.GetCapabilities(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	s, err := i.GenerateSchedule(deviceID, period, caps)
	if err != nil {
		return nil, err
	}
	if res := i.opts.Validator.Validate(s); !res.Valid {
		return nil, fmt.Errorf("%w: %s for %s: %w", ErrInvalidSchedule, s.ScheduleID, deviceID, res.Err)
	}

	payload, err := s.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode schedule %s for %s: %w", s.ScheduleID, deviceID, err)
	}

	// Journal first. The ack can arrive before Publish returns.
	now := i.now()
	if err := i.opts.Store.InsertIssued(ctx, s, payload, now, now.Add(i.republishDelay(1))); err != nil {
		return nil, fmt.Errorf("journal schedule %s for %s: %w", s.ScheduleID, deviceID, err)
	}
	if err := i.opts.Channel.Publish(ctx, transport.ScheduleTopic(deviceID), payload); err != nil {
		return s, fmt.Errorf("publish schedule %s for %s: %w", s.ScheduleID, deviceID, err)
	}

	log.Printf("[ISSUER] Published schedule %s to %s (%d intervals, max %.1f kW)",
		s.ScheduleID, deviceID, len(s.Intervals), *s.MaxPowerKW)
	return s, nil
}

// PublishAll publishes the period to every configured device. A failing
// device does not stop the others.
func (i *Issuer) PublishAll(ctx context.Context, period string) error {
	var errs []error
	for _, deviceID := range i.opts.Devices {
		if _, err := i.BuildAndPublish(ctx, deviceID, period); err != nil {
			log.Printf("[ISSUER] Failed to publish %s to %s: %v", period, deviceID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleAck journals one acknowledgement under the device of the topic it
// arrived on. Redelivered acks are ignored.
func (i *Issuer) HandleAck(topic string, payload []byte) error {
	topicDevice, err := transport.DeviceIDFromTopic(topic)
	if err != nil {
		return err
	}
	a, err := schedule.ParseAcknowledgement(payload)
	if err != nil {
		return fmt.Errorf("acknowledgement on %s: %w", topic, err)
	}
	// The topic is the device that answered, the payload only claims one.
	if a.DeviceID != topicDevice {
		log.Printf("[ISSUER] Acknowledgement %s claims device %q, filing it under %s", a.AckID, a.DeviceID, topicDevice)
		a.DeviceID = topicDevice
	}

	ctx := i.base
	inserted, err := i.opts.Store.RecordAck(ctx, a, i.now())
	if err != nil {
		return fmt.Errorf("journal acknowledgement %s: %w", a.AckID, err)
	}
	if !inserted {
		log.Printf("[ISSUER] Duplicate acknowledgement %s ignored", a.AckID)
		return nil
	}

	switch a.Status {
	case schedule.StatusFailed:
		log.Printf("[ISSUER] %s FAILED %s: %s", a.DeviceID, a.ScheduleID, a.ErrorReason)
	case schedule.StatusApplied:
		latency := ""
		if issued, ok, err := i.opts.Store.GetIssued(ctx, a.DeviceID, a.ScheduleID); err == nil && ok && a.AppliedAt != nil {
			latency = fmt.Sprintf(" after %s", a.AppliedAt.Sub(issued.IssuedAt).Round(time.Millisecond))
		}
		log.Printf("[ISSUER] %s APPLIED %s%s", a.DeviceID, a.ScheduleID, latency)
	default:
		log.Printf("[ISSUER] %s %s %s", a.DeviceID, a.Status, a.ScheduleID)
	}

	if i.opts.OnAck != nil {
		i.opts.OnAck(*a)
	}
	return nil
}

// RepublishPending sends unanswered schedules again, unchanged. Each attempt
// waits twice as long as the previous one. Schedules still unanswered after
// MaxPublishAttempts are expired. It returns the number republished.
func (i *Issuer) RepublishPending(ctx context.Context, now time.Time) (int, error) {
	pending, err := i.opts.Store.PendingRepublish(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		count int
		errs  []error
	)
	for _, p := range pending {
		if p.PublishCount >= i.opts.MaxPublishAttempts {
			log.Printf("[ISSUER] No acknowledgement for %s from %s after %d attempts, giving up",
				p.ScheduleID, p.DeviceID, p.PublishCount)
			if err := i.opts.Store.MarkExpired(ctx, p.DeviceID, p.ScheduleID); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if err := i.opts.Channel.Publish(ctx, transport.ScheduleTopic(p.DeviceID), p.Payload); err != nil {
			errs = append(errs, fmt.Errorf("republish %s to %s: %w", p.ScheduleID, p.DeviceID, err))
			continue
		}
		attempt := p.PublishCount + 1
		if err := i.opts.Store.MarkRepublished(ctx, p.DeviceID, p.ScheduleID, now, now.Add(i.republishDelay(attempt))); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Printf("[ISSUER] Republished %s to %s (attempt %d)", p.ScheduleID, p.DeviceID, attempt)
		count++
	}
	return count, errors.Join(errs...)
}

// republishDelay is the wait after the given publish attempt.
func (i *Issuer) republishDelay(attempt int) time.Duration {
	d := i.opts.AckTimeout
	for n := 1; n < attempt && d < maxRepublishDelay; n++ {
		d *= 2
	}
	return min(d, maxRepublishDelay)
}

// Start subscribes to the acknowledgements of all devices.
func (i *Issuer) Start(ctx context.Context) error {
	i.base = ctx
	if err := i.opts.Channel.Subscribe(transport.AckWildcard, i.onAck); err != nil {
		return fmt.Errorf("subscribe %s: %w", transport.AckWildcard, err)
	}
	log.Printf("[ISSUER] Listening for acknowledgements on %s", transport.AckWildcard)
	return nil
}

func (i *Issuer) Stop() error {
	return i.opts.Channel.Unsubscribe(transport.AckWildcard)
}

func (i *Issuer) onAck(topic string, payload []byte) {
	if err := i.HandleAck(topic, payload); err != nil {
		log.Printf("[ISSUER] %v", err)
	}
}
