package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "fieldwatch/internal/telemetry/domain"
)

// SampleRepository is a Postgres repository for the append-only sample
// time series.
type SampleRepository struct {
	db *sql.DB
}

// NewSampleRepository constructs a repository.
func NewSampleRepository(db *sql.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

// Insert appends a sample row.
func (r *SampleRepository) Insert(ctx context.Context, sample *telemetry.Sample) error {
	if r == nil || r.db == nil {
		return errors.New("sample repo: nil db")
	}
	if sample == nil {
		return errors.New("sample repo: nil sample")
	}
	if sample.PointID == "" {
		return errors.New("sample repo: empty point id")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO samples (id, point_id, value, ts)
VALUES ($1, $2, $3, $4)`, sample.ID, sample.PointID, sample.Value, sample.TS.UTC())
	return err
}

// LastSampleTime returns the timestamp of the most recent sample for a
// point; ok is false when no sample exists yet.
func (r *SampleRepository) LastSampleTime(ctx context.Context, pointID string) (time.Time, bool, error) {
	if r == nil || r.db == nil {
		return time.Time{}, false, errors.New("sample repo: nil db")
	}
	if pointID == "" {
		return time.Time{}, false, errors.New("sample repo: empty point id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT ts
FROM samples
WHERE point_id = $1
ORDER BY ts DESC
LIMIT 1`, pointID)
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}

// ListByPoint returns a point's samples in ascending timestamp order.
func (r *SampleRepository) ListByPoint(ctx context.Context, pointID string) ([]telemetry.Sample, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sample repo: nil db")
	}
	if pointID == "" {
		return nil, errors.New("sample repo: empty point id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, point_id, value, ts
FROM samples
WHERE point_id = $1
ORDER BY ts ASC`, pointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Sample
	for rows.Next() {
		var sample telemetry.Sample
		if err := rows.Scan(&sample.ID, &sample.PointID, &sample.Value, &sample.TS); err != nil {
			return nil, err
		}
		sample.TS = sample.TS.UTC()
		result = append(result, sample)
	}
	return result, rows.Err()
}

// DeleteByPoint drops a point's samples. Part of the point-delete cascade.
func (r *SampleRepository) DeleteByPoint(ctx context.Context, pointID string) error {
	if r == nil || r.db == nil {
		return errors.New("sample repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM samples WHERE point_id = $1`, pointID)
	return err
}
