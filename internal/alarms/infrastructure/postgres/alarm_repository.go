package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "fieldwatch/internal/alarms/domain"
)

// AlarmRepository is a Postgres repository for alarms.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

const alarmColumns = `id, name, monitor_type, point_id, client_id, group_id, condition, threshold, active, created_at, updated_at`

// Create inserts an alarm.
func (r *AlarmRepository) Create(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	if err := alarm.Validate(); err != nil {
		return err
	}
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = time.Now().UTC()
	}
	if alarm.UpdatedAt.IsZero() {
		alarm.UpdatedAt = alarm.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarms (
	id, name, monitor_type, point_id, client_id, group_id, condition, threshold, active, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, alarm.ID, alarm.Name, string(alarm.MonitorType), alarm.PointID, alarm.ClientID,
		alarm.GroupID, string(alarm.Condition), thresholdValue(alarm), alarm.Active,
		alarm.CreatedAt, alarm.UpdatedAt)
	return err
}

// Update overwrites the rule fields of an alarm, leaving active untouched.
func (r *AlarmRepository) Update(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	if err := alarm.Validate(); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET name = $2, monitor_type = $3, point_id = $4, client_id = $5, group_id = $6,
	condition = $7, threshold = $8, updated_at = $9
WHERE id = $1`, alarm.ID, alarm.Name, string(alarm.MonitorType), alarm.PointID,
		alarm.ClientID, alarm.GroupID, string(alarm.Condition), thresholdValue(alarm),
		time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// GetByID loads an alarm by id.
func (r *AlarmRepository) GetByID(ctx context.Context, id string) (*alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if id == "" {
		return nil, errors.New("alarm repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+alarmColumns+`
FROM alarms
WHERE id = $1
LIMIT 1`, id)
	alarm, err := scanAlarm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alarm, nil
}

// List returns all alarms ordered by name.
func (r *AlarmRepository) List(ctx context.Context) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+alarmColumns+`
FROM alarms
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlarms(rows)
}

// ListByPoint returns the alarms bound to a point.
func (r *AlarmRepository) ListByPoint(ctx context.Context, pointID string) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if pointID == "" {
		return nil, errors.New("alarm repo: empty point id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+alarmColumns+`
FROM alarms
WHERE monitor_type = 'point' AND point_id = $1
ORDER BY created_at ASC`, pointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlarms(rows)
}

// ListConnectionByClient returns the connection alarms bound to a client.
func (r *AlarmRepository) ListConnectionByClient(ctx context.Context, clientID string) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if clientID == "" {
		return nil, errors.New("alarm repo: empty client id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+alarmColumns+`
FROM alarms
WHERE monitor_type = 'clientConnection' AND client_id = $1
ORDER BY created_at ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlarms(rows)
}

// SetActive persists an alarm state transition.
func (r *AlarmRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET active = $2, updated_at = $3
WHERE id = $1`, id, active, now.UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// Delete removes an alarm row.
func (r *AlarmRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// DeleteByPoint removes all alarms bound to a point. Part of the
// point-delete cascade.
func (r *AlarmRepository) DeleteByPoint(ctx context.Context, pointID string) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
DELETE FROM alarms
WHERE monitor_type = 'point' AND point_id = $1`, pointID)
	return err
}

// DeleteConnectionByClient removes the connection alarms bound to a client.
// Part of the client-delete cascade.
func (r *AlarmRepository) DeleteConnectionByClient(ctx context.Context, clientID string) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
DELETE FROM alarms
WHERE monitor_type = 'clientConnection' AND client_id = $1`, clientID)
	return err
}

// DeactivateByClient clears active on every alarm dependent on a client:
// connection alarms bound to the client itself and point alarms bound to any
// of its points. No rows are deleted.
func (r *AlarmRepository) DeactivateByClient(ctx context.Context, clientID string, now time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET active = FALSE, updated_at = $2
WHERE active = TRUE
  AND (client_id = $1
	OR point_id IN (SELECT id FROM points WHERE client_id = $1))`, clientID, now.UTC())
	return err
}

// ReconcileDanglingPointAlarms deletes point alarms whose point no longer
// exists. Safe to re-run.
func (r *AlarmRepository) ReconcileDanglingPointAlarms(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("alarm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM alarms a
WHERE a.monitor_type = 'point'
  AND NOT EXISTS (SELECT 1 FROM points p WHERE p.id = a.point_id)`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(scanner rowScanner) (*alarms.Alarm, error) {
	var alarm alarms.Alarm
	var monitorType, condition string
	var threshold sql.NullFloat64
	if err := scanner.Scan(
		&alarm.ID,
		&alarm.Name,
		&monitorType,
		&alarm.PointID,
		&alarm.ClientID,
		&alarm.GroupID,
		&condition,
		&threshold,
		&alarm.Active,
		&alarm.CreatedAt,
		&alarm.UpdatedAt,
	); err != nil {
		return nil, err
	}
	alarm.MonitorType = alarms.MonitorType(monitorType)
	alarm.Condition = alarms.Condition(condition)
	if threshold.Valid {
		alarm.Threshold = threshold.Float64
	}
	alarm.CreatedAt = alarm.CreatedAt.UTC()
	alarm.UpdatedAt = alarm.UpdatedAt.UTC()
	return &alarm, nil
}

func scanAlarms(rows *sql.Rows) ([]alarms.Alarm, error) {
	var result []alarms.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alarm)
	}
	return result, rows.Err()
}

func thresholdValue(alarm *alarms.Alarm) sql.NullFloat64 {
	if !alarm.Condition.Numeric() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: alarm.Threshold, Valid: true}
}
