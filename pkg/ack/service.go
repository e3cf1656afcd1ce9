// Package ack builds acknowledgement records for schedule deliveries.
package ack

import (
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/google/uuid"
)

const unspecifiedFailure = "unspecified failure"

// Builder produces acknowledgements. Now and NewID are injectable for tests.
type Builder struct {
	Now   func() time.Time
	NewID func() string
}

type params struct {
	reason             string
	limit              *float64
	appliedAt          *time.Time
	fallbackScheduleID string
	fallbackDeviceID   string
}

type Option func(*params)

func WithReason(reason string) Option {
	return func(p *params) { p.reason = reason }
}

func WithLimit(limitKW float64) Option {
	return func(p *params) { p.limit = &limitKW }
}

func WithAppliedAt(t time.Time) Option {
	return func(p *params) { p.appliedAt = &t }
}

// WithFallbackScheduleID is used when the schedule is nil or has no id.
func WithFallbackScheduleID(id string) Option {
	return func(p *params) { p.fallbackScheduleID = id }
}

// WithFallbackDeviceID is used when the schedule is nil or has no device id.
func WithFallbackDeviceID(id string) Option {
	return func(p *params) { p.fallbackDeviceID = id }
}

var defaultBuilder = Builder{}

// Build uses a UTC clock and random UUIDs.
func Build(s *schedule.Schedule, status schedule.AckStatus, opts ...Option) schedule.Acknowledgement {
	return defaultBuilder.Build(s, status, opts...)
}

func (b Builder) Build(s *schedule.Schedule, status schedule.AckStatus, opts ...Option) schedule.Acknowledgement {
	var p params
	for _, opt := range opts {
		opt(&p)
	}

	var scheduleID, deviceID string
	if s != nil {
		scheduleID, deviceID = s.ScheduleID, s.DeviceID
	}

	a := schedule.Acknowledgement{
		AckID:             b.newID(),
		ScheduleID:        resolveID(scheduleID, p.fallbackScheduleID),
		DeviceID:          resolveID(deviceID, p.fallbackDeviceID),
		Status:            status,
		MaxPowerKWApplied: p.limit,
		Timestamp:         b.now(),
	}

	switch status {
	case schedule.StatusFailed:
		a.ErrorReason = p.reason
		if a.ErrorReason == "" {
			a.ErrorReason = unspecifiedFailure
		}
	case schedule.StatusApplied:
		if p.appliedAt != nil {
			appliedAt := p.appliedAt.UTC()
			a.AppliedAt = &appliedAt
		}
	}
	return a
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

func (b Builder) newID() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

func resolveID(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	if fallback != "" {
		return fallback
	}
	return schedule.UnknownID
}
