package postgres

import (
	"context"
	"database/sql"
	"errors"

	telemetry "fieldwatch/internal/telemetry/domain"
)

// PointRepository is a Postgres repository for points. Group assignment is a
// plain column resolved by the application; reassignment and detachment are
// single-row updates.
type PointRepository struct {
	db *sql.DB
}

// NewPointRepository constructs a repository.
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db}
}

const pointColumns = `id, client_id, name, ip_address, type_code, external_id, group_id, last_value, last_update_at`

// Upsert finds or creates the point keyed by (client, name) and always
// overwrites the cached last value and mutable metadata. The stored row,
// including any existing group assignment, is loaded back into point.
func (r *PointRepository) Upsert(ctx context.Context, point *telemetry.Point) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	if point == nil {
		return errors.New("point repo: nil point")
	}
	if err := point.Validate(); err != nil {
		return err
	}
	row := r.db.QueryRowContext(ctx, `
INSERT INTO points (
	id, client_id, name, ip_address, type_code, external_id, group_id, last_value, last_update_at
) VALUES (
	$1, $2, $3, $4, $5, $6, '', $7, $8
)
ON CONFLICT (client_id, name)
DO UPDATE SET
	ip_address = EXCLUDED.ip_address,
	type_code = EXCLUDED.type_code,
	external_id = EXCLUDED.external_id,
	last_value = EXCLUDED.last_value,
	last_update_at = EXCLUDED.last_update_at
RETURNING id, group_id`,
		point.ID, point.ClientID, point.Name, point.IPAddress, point.TypeCode,
		point.ExternalID, point.LastValue, point.LastUpdateAt.UTC())
	return row.Scan(&point.ID, &point.GroupID)
}

// GetByID loads a point by id.
func (r *PointRepository) GetByID(ctx context.Context, id string) (*telemetry.Point, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	if id == "" {
		return nil, errors.New("point repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+pointColumns+`
FROM points
WHERE id = $1
LIMIT 1`, id)
	var point telemetry.Point
	if err := row.Scan(
		&point.ID,
		&point.ClientID,
		&point.Name,
		&point.IPAddress,
		&point.TypeCode,
		&point.ExternalID,
		&point.GroupID,
		&point.LastValue,
		&point.LastUpdateAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	point.LastUpdateAt = point.LastUpdateAt.UTC()
	return &point, nil
}

// ListByClient returns all points of a client.
func (r *PointRepository) ListByClient(ctx context.Context, clientID string) ([]telemetry.Point, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	if clientID == "" {
		return nil, errors.New("point repo: empty client id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+pointColumns+`
FROM points
WHERE client_id = $1
ORDER BY name ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

// PointDetail is a point joined with its client and group labels for listing.
type PointDetail struct {
	telemetry.Point
	ClientName string `json:"clientName"`
	GroupName  string `json:"groupName,omitempty"`
}

// ListDetailed returns points with client/group labels, optionally filtered
// by client and/or group.
func (r *PointRepository) ListDetailed(ctx context.Context, clientID, groupID string) ([]PointDetail, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT p.id, p.client_id, p.name, p.ip_address, p.type_code, p.external_id, p.group_id,
	p.last_value, p.last_update_at,
	COALESCE(c.name, ''), COALESCE(g.name, '')
FROM points p
LEFT JOIN clients c ON c.id = p.client_id
LEFT JOIN groups g ON g.id = p.group_id
WHERE ($1 = '' OR p.client_id = $1)
  AND ($2 = '' OR p.group_id = $2)
ORDER BY c.name ASC, p.name ASC`, clientID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PointDetail
	for rows.Next() {
		var detail PointDetail
		if err := rows.Scan(
			&detail.ID,
			&detail.ClientID,
			&detail.Name,
			&detail.IPAddress,
			&detail.TypeCode,
			&detail.ExternalID,
			&detail.GroupID,
			&detail.LastValue,
			&detail.LastUpdateAt,
			&detail.ClientName,
			&detail.GroupName,
		); err != nil {
			return nil, err
		}
		detail.LastUpdateAt = detail.LastUpdateAt.UTC()
		result = append(result, detail)
	}
	return result, rows.Err()
}

// SetGroup reassigns a point's group; empty groupID detaches it.
func (r *PointRepository) SetGroup(ctx context.Context, pointID, groupID string) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE points
SET group_id = $2
WHERE id = $1`, pointID, groupID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return telemetry.ErrNotFound
	}
	return nil
}

// DetachGroup clears the group assignment of every point in a group.
func (r *PointRepository) DetachGroup(ctx context.Context, groupID string) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE points
SET group_id = ''
WHERE group_id = $1`, groupID)
	return err
}

// Delete removes a point row.
func (r *PointRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("point repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM points WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return telemetry.ErrNotFound
	}
	return nil
}

// ReconcileGroupRefs clears group assignments pointing at groups that no
// longer exist. Safe to re-run.
func (r *PointRepository) ReconcileGroupRefs(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("point repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE points p
SET group_id = ''
WHERE p.group_id <> ''
  AND NOT EXISTS (SELECT 1 FROM groups g WHERE g.id = p.group_id)`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanPoints(rows *sql.Rows) ([]telemetry.Point, error) {
	var result []telemetry.Point
	for rows.Next() {
		var point telemetry.Point
		if err := rows.Scan(
			&point.ID,
			&point.ClientID,
			&point.Name,
			&point.IPAddress,
			&point.TypeCode,
			&point.ExternalID,
			&point.GroupID,
			&point.LastValue,
			&point.LastUpdateAt,
		); err != nil {
			return nil, err
		}
		point.LastUpdateAt = point.LastUpdateAt.UTC()
		result = append(result, point)
	}
	return result, rows.Err()
}
