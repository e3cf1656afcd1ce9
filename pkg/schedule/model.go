package schedule

import "time"

type AckStatus string

const (
	StatusReceived AckStatus = "RECEIVED"
	StatusApplied  AckStatus = "APPLIED"
	StatusFailed   AckStatus = "FAILED"
)

// Terminal reports whether no further acknowledgement follows this one for
// the same delivery.
func (s AckStatus) Terminal() bool {
	return s == StatusApplied || s == StatusFailed
}

// UnknownID is used for ids that could not be recovered from a delivery.
const UnknownID = "unknown"

// Acknowledgement is the outcome record of one delivery attempt.
// Acknowledgements are never updated, a redelivery produces a new one.
type Acknowledgement struct {
	AckID             string     `json:"ack_id"`
	ScheduleID        string     `json:"schedule_id"`
	DeviceID          string     `json:"device_id"`
	Status            AckStatus  `json:"status"`
	ErrorReason       string     `json:"error_reason,omitempty"`
	MaxPowerKWApplied *float64   `json:"max_power_kw_applied,omitempty"`
	AppliedAt         *time.Time `json:"applied_at,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}
