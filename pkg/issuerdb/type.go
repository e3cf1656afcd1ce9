package issuerdb

import "time"

// Journal state of an issued schedule.
type State string

const (
	StatePending State = "PENDING"
	StateAcked   State = "ACKED"
	StateExpired State = "EXPIRED"
)

type IssuedSchedule struct {
	DeviceID        string    `db:"device_id" json:"device_id"`
	ScheduleID      string    `db:"schedule_id" json:"schedule_id"`
	Version         string    `db:"version" json:"version"`
	Payload         []byte    `db:"payload" json:"-"`
	IssuedAt        time.Time `db:"issued_at" json:"issued_at"`
	MaxPowerKW      *float64  `db:"max_power_kw" json:"max_power_kw,omitempty"`
	PublishCount    int       `db:"publish_count" json:"publish_count"`
	LastPublishedAt time.Time `db:"last_published_at" json:"last_published_at"`
	NextRepublishAt time.Time `db:"next_republish_at" json:"next_republish_at"`
	State           State     `db:"state" json:"state"`
}

// SummaryRow is one line of the delivery summary: the latest known status
// of a schedule on a device.
type SummaryRow struct {
	ScheduleID        string    `json:"schedule_id"`
	DeviceID          string    `json:"device_id"`
	Status            string    `json:"status"`
	ErrorReason       string    `json:"error_reason,omitempty"`
	MaxPowerKWApplied *float64  `json:"max_power_kw_applied,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
