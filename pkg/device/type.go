package device

import (
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/ack"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/executor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
)

// State of one delivery as it moves through the flow.
type State string

const (
	StateReceivedRaw State = "RECEIVED_RAW"
	StateParsed      State = "PARSED"
	StateValidated   State = "VALIDATED"
	StateExecuting   State = "EXECUTING"
	StateDone        State = "DONE"
)

type Options struct {
	DeviceID  string
	Validator *validator.Validator
	Executor  *executor.Adapter
	Channel   transport.Channel

	// Publish a non terminal RECEIVED ack once a schedule validated
	SendReceivedAck bool
	// Upper bound for a single delivery, 0 means no limit
	HandleTimeout time.Duration

	// Optional
	Acks    ack.Builder
	Observe func(deviceID string, from, to State)
}
