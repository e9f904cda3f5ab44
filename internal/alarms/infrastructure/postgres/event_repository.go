package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "fieldwatch/internal/alarms/domain"
)

// EventRepository is a Postgres repository for the append-only event log.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends an event row.
func (r *EventRepository) Insert(ctx context.Context, event *alarms.Event) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	if event == nil {
		return errors.New("event repo: nil event")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO events (id, type, point_id, group_id, value, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Type, event.PointID, event.GroupID, event.Value, event.CreatedAt.UTC())
	return err
}

// EventDetail is an event joined with its point and group labels.
type EventDetail struct {
	alarms.Event
	PointName string `json:"pointName"`
	GroupName string `json:"groupName,omitempty"`
}

// EventPage is one page of the event log plus the total row count.
type EventPage struct {
	Events []EventDetail `json:"events"`
	Total  int           `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// ListPage returns one page of events, newest first, optionally filtered by
// group. Deleted points and groups render with empty labels.
func (r *EventRepository) ListPage(ctx context.Context, groupID string, page, limit int) (*EventPage, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	var total int
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM events
WHERE ($1 = '' OR group_id = $1)`, groupID)
	if err := row.Scan(&total); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT e.id, e.type, e.point_id, e.group_id, e.value, e.created_at,
	COALESCE(p.name, ''), COALESCE(g.name, '')
FROM events e
LEFT JOIN points p ON p.id = e.point_id
LEFT JOIN groups g ON g.id = e.group_id
WHERE ($1 = '' OR e.group_id = $1)
ORDER BY e.created_at DESC
LIMIT $2 OFFSET $3`, groupID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &EventPage{Total: total, Page: page, Limit: limit}
	for rows.Next() {
		var detail EventDetail
		if err := rows.Scan(
			&detail.ID,
			&detail.Type,
			&detail.PointID,
			&detail.GroupID,
			&detail.Value,
			&detail.CreatedAt,
			&detail.PointName,
			&detail.GroupName,
		); err != nil {
			return nil, err
		}
		detail.CreatedAt = detail.CreatedAt.UTC()
		result.Events = append(result.Events, detail)
	}
	return result, rows.Err()
}

// ListAll streams the whole event log, oldest first. Used by the CSV export.
func (r *EventRepository) ListAll(ctx context.Context) ([]EventDetail, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT e.id, e.type, e.point_id, e.group_id, e.value, e.created_at,
	COALESCE(p.name, ''), COALESCE(g.name, '')
FROM events e
LEFT JOIN points p ON p.id = e.point_id
LEFT JOIN groups g ON g.id = e.group_id
ORDER BY e.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventDetail
	for rows.Next() {
		var detail EventDetail
		if err := rows.Scan(
			&detail.ID,
			&detail.Type,
			&detail.PointID,
			&detail.GroupID,
			&detail.Value,
			&detail.CreatedAt,
			&detail.PointName,
			&detail.GroupName,
		); err != nil {
			return nil, err
		}
		detail.CreatedAt = detail.CreatedAt.UTC()
		result = append(result, detail)
	}
	return result, rows.Err()
}
