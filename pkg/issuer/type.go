package issuer

import (
	"errors"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/capability"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerdb"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
)

var (
	ErrInvalidPeriod   = errors.New("invalid planning period")
	ErrInvalidSchedule = errors.New("generated schedule failed validation")
)

type Options struct {
	Version     string
	IncludeMode bool
	// Devices published by PublishAll
	Devices []string

	Capabilities capability.Provider
	Planner      Planner
	Validator    *validator.Validator
	Channel      transport.Channel
	Store        *issuerdb.Store

	// Wait for an acknowledgement before the first republish, doubled on
	// every further attempt
	AckTimeout         time.Duration
	MaxPublishAttempts int
	// Ceiling for devices whose capabilities carry none
	DefaultMaxPowerKW float64

	PublishCron   string
	RepublishCron string
	PlanDaysAhead int

	// Optional
	Now   func() time.Time
	OnAck func(a schedule.Acknowledgement)
}
