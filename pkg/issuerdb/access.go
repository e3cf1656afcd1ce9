package issuerdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

// Store runs the journal queries. Timestamps are stored as unix milliseconds.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertIssued journals a published schedule. Publishing the same schedule
// again counts as another attempt and makes it pending again.
func (s *Store) InsertIssued(ctx context.Context, sch *schedule.Schedule, payload []byte, publishedAt, nextRepublishAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO schedules "+
			"(device_id, schedule_id, version, payload, issued_at, max_power_kw, publish_count, last_published_at, next_republish_at, state) "+
			"VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?) "+
			"ON CONFLICT (device_id, schedule_id) DO UPDATE SET "+
			"version = excluded.version, payload = excluded.payload, issued_at = excluded.issued_at, "+
			"max_power_kw = excluded.max_power_kw, publish_count = schedules.publish_count + 1, "+
			"last_published_at = excluded.last_published_at, next_republish_at = excluded.next_republish_at, "+
			"state = excluded.state",
		sch.DeviceID,
		sch.ScheduleID,
		sch.Version,
		string(payload),
		toMillis(sch.IssuedAt),
		nullFloat(sch.MaxPowerKW),
		toMillis(publishedAt),
		toMillis(nextRepublishAt),
		StatePending,
	)
	return err
}

func (s *Store) MarkRepublished(ctx context.Context, deviceID, scheduleID string, publishedAt, nextRepublishAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE schedules SET publish_count = publish_count + 1, last_published_at = ?, next_republish_at = ? "+
			"WHERE device_id = ? AND schedule_id = ?",
		toMillis(publishedAt),
		toMillis(nextRepublishAt),
		deviceID,
		scheduleID,
	)
	return err
}

func (s *Store) MarkExpired(ctx context.Context, deviceID, scheduleID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE schedules SET state = ? WHERE device_id = ? AND schedule_id = ? AND state = ?",
		StateExpired, deviceID, scheduleID, StatePending,
	)
	return err
}

// PendingRepublish returns schedules without any acknowledgement whose
// republish time has passed.
func (s *Store) PendingRepublish(ctx context.Context, now time.Time) ([]IssuedSchedule, error) {
	return s.querySchedules(ctx,
		scheduleColumns+" FROM schedules "+
			"WHERE state = ? AND next_republish_at <= ? "+
			"ORDER BY next_republish_at, device_id",
		StatePending, toMillis(now),
	)
}

// Schedules returns the journal, optionally limited to one schedule id.
func (s *Store) Schedules(ctx context.Context, scheduleID string) ([]IssuedSchedule, error) {
	if scheduleID == "" {
		return s.querySchedules(ctx, scheduleColumns+" FROM schedules ORDER BY schedule_id, device_id")
	}
	return s.querySchedules(ctx,
		scheduleColumns+" FROM schedules WHERE schedule_id = ? ORDER BY device_id",
		scheduleID,
	)
}

// GetIssued returns one journaled schedule. ok is false when it was never
// published.
func (s *Store) GetIssued(ctx context.Context, deviceID, scheduleID string) (IssuedSchedule, bool, error) {
	rows, err := s.querySchedules(ctx,
		scheduleColumns+" FROM schedules WHERE device_id = ? AND schedule_id = ?",
		deviceID, scheduleID,
	)
	if err != nil || len(rows) == 0 {
		return IssuedSchedule{}, false, err
	}
	return rows[0], true, nil
}

// RecordAck stores an acknowledgement once per ack_id and updates the latest
// status of its schedule. Only terminal acks settle a pending schedule.
// It reports false for a redelivered ack.
func (s *Store) RecordAck(ctx context.Context, a *schedule.Acknowledgement, receivedAt time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO acks "+
			"(ack_id, device_id, schedule_id, status, error_reason, max_power_kw_applied, applied_at, timestamp, received_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.AckID,
		a.DeviceID,
		a.ScheduleID,
		a.Status,
		nullString(a.ErrorReason),
		nullFloat(a.MaxPowerKWApplied),
		nullMillis(a.AppliedAt),
		toMillis(a.Timestamp),
		toMillis(receivedAt),
	)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	// Last write wins, in arrival order.
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schedule_status (device_id, schedule_id, status, error_reason, max_power_kw_applied, updated_at) "+
			"VALUES (?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT (device_id, schedule_id) DO UPDATE SET "+
			"status = excluded.status, error_reason = excluded.error_reason, "+
			"max_power_kw_applied = excluded.max_power_kw_applied, updated_at = excluded.updated_at",
		a.DeviceID,
		a.ScheduleID,
		a.Status,
		nullString(a.ErrorReason),
		nullFloat(a.MaxPowerKWApplied),
		toMillis(receivedAt),
	); err != nil {
		return false, err
	}

	// A RECEIVED milestone keeps the schedule due for republish until the
	// terminal ack arrives.
	if a.Status.Terminal() {
		if _, err := tx.ExecContext(ctx,
			"UPDATE schedules SET state = ? WHERE device_id = ? AND schedule_id = ? AND state = ?",
			StateAcked, a.DeviceID, a.ScheduleID, StatePending,
		); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// Acks returns stored acknowledgements in arrival order. Empty filters match
// everything.
func (s *Store) Acks(ctx context.Context, deviceID, scheduleID string) ([]schedule.Acknowledgement, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ack_id, device_id, schedule_id, status, error_reason, max_power_kw_applied, applied_at, timestamp "+
			"FROM acks WHERE (? = '' OR device_id = ?) AND (? = '' OR schedule_id = ?) "+
			"ORDER BY received_at, rowid",
		deviceID, deviceID, scheduleID, scheduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acks []schedule.Acknowledgement
	for rows.Next() {
		var (
			a         schedule.Acknowledgement
			reason    sql.NullString
			limit     sql.NullFloat64
			appliedAt sql.NullInt64
			timestamp int64
		)
		if err := rows.Scan(&a.AckID, &a.DeviceID, &a.ScheduleID, &a.Status, &reason, &limit, &appliedAt, &timestamp); err != nil {
			return nil, err
		}
		a.ErrorReason = reason.String
		a.MaxPowerKWApplied = floatPtr(limit)
		if appliedAt.Valid {
			t := fromMillis(appliedAt.Int64)
			a.AppliedAt = &t
		}
		a.Timestamp = fromMillis(timestamp)
		acks = append(acks, a)
	}
	return acks, rows.Err()
}

// LatestStatus returns the last acknowledged status of a schedule.
// ok is false when no acknowledgement arrived yet.
func (s *Store) LatestStatus(ctx context.Context, deviceID, scheduleID string) (status schedule.AckStatus, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT status FROM schedule_status WHERE device_id = ? AND schedule_id = ?",
		deviceID, scheduleID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// Summary lists every journaled schedule with its latest status, followed by
// acknowledgements for schedules that were never journaled (such as parse
// failures reported as "unknown"). An empty scheduleID lists all.
func (s *Store) Summary(ctx context.Context, scheduleID string) ([]SummaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT sc.schedule_id, sc.device_id, COALESCE(st.status, sc.state), st.error_reason, "+
			"COALESCE(st.max_power_kw_applied, sc.max_power_kw), COALESCE(st.updated_at, sc.last_published_at) "+
			"FROM schedules sc LEFT JOIN schedule_status st "+
			"ON st.device_id = sc.device_id AND st.schedule_id = sc.schedule_id "+
			"WHERE (? = '' OR sc.schedule_id = ?) "+
			"UNION ALL "+
			"SELECT st.schedule_id, st.device_id, st.status, st.error_reason, st.max_power_kw_applied, st.updated_at "+
			"FROM schedule_status st LEFT JOIN schedules sc "+
			"ON st.device_id = sc.device_id AND st.schedule_id = sc.schedule_id "+
			"WHERE sc.schedule_id IS NULL AND (? = '' OR st.schedule_id = ?) "+
			"ORDER BY 1, 2",
		scheduleID, scheduleID, scheduleID, scheduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var (
			r         SummaryRow
			reason    sql.NullString
			limit     sql.NullFloat64
			timestamp int64
		)
		if err := rows.Scan(&r.ScheduleID, &r.DeviceID, &r.Status, &reason, &limit, &timestamp); err != nil {
			return nil, err
		}
		r.ErrorReason = reason.String
		r.MaxPowerKWApplied = floatPtr(limit)
		r.Timestamp = fromMillis(timestamp)
		out = append(out, r)
	}
	return out, rows.Err()
}

const scheduleColumns = "SELECT device_id, schedule_id, version, payload, issued_at, max_power_kw, " +
	"publish_count, last_published_at, next_republish_at, state"

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]IssuedSchedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IssuedSchedule
	for rows.Next() {
		var (
			r                                  IssuedSchedule
			payload                            string
			limit                              sql.NullFloat64
			issuedAt, lastPublished, nextRetry int64
		)
		if err := rows.Scan(&r.DeviceID, &r.ScheduleID, &r.Version, &payload, &issuedAt, &limit,
			&r.PublishCount, &lastPublished, &nextRetry, &r.State); err != nil {
			return nil, err
		}
		r.Payload = []byte(payload)
		r.IssuedAt = fromMillis(issuedAt)
		r.MaxPowerKW = floatPtr(limit)
		r.LastPublishedAt = fromMillis(lastPublished)
		r.NextRepublishAt = fromMillis(nextRetry)
		out = append(out, r)
	}
	return out, rows.Err()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
