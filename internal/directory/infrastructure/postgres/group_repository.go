package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	directory "fieldwatch/internal/directory/domain"
)

// GroupRepository is a Postgres repository for groups and their user
// membership index. Membership is an application-maintained join table, not
// a storage-enforced foreign key.
type GroupRepository struct {
	db *sql.DB
}

// NewGroupRepository constructs a repository.
func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a group.
func (r *GroupRepository) Create(ctx context.Context, group *directory.Group) error {
	if r == nil || r.db == nil {
		return errors.New("group repo: nil db")
	}
	if group == nil {
		return errors.New("group repo: nil group")
	}
	if err := group.Validate(); err != nil {
		return err
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO groups (id, name, description, created_at)
VALUES ($1, $2, $3, $4)`, group.ID, group.Name, group.Description, group.CreatedAt)
	return err
}

// GetByID loads a group by id.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*directory.Group, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("group repo: nil db")
	}
	if id == "" {
		return nil, errors.New("group repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, description, created_at
FROM groups
WHERE id = $1
LIMIT 1`, id)
	var group directory.Group
	if err := row.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	group.CreatedAt = group.CreatedAt.UTC()
	return &group, nil
}

// List returns all groups ordered by name.
func (r *GroupRepository) List(ctx context.Context) ([]directory.Group, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("group repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, description, created_at
FROM groups
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Group
	for rows.Next() {
		var group directory.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt); err != nil {
			return nil, err
		}
		group.CreatedAt = group.CreatedAt.UTC()
		result = append(result, group)
	}
	return result, rows.Err()
}

// Delete removes a group row. Detaching members is the maintainer's job.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("group repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AddUser attaches a user to a group. Re-adding is a no-op.
func (r *GroupRepository) AddUser(ctx context.Context, groupID, userID string) error {
	if r == nil || r.db == nil {
		return errors.New("group repo: nil db")
	}
	if groupID == "" || userID == "" {
		return errors.New("group repo: empty membership key")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO group_users (group_id, user_id)
VALUES ($1, $2)
ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	return err
}

// RemoveUser detaches a user from a group without deleting the user.
func (r *GroupRepository) RemoveUser(ctx context.Context, groupID, userID string) error {
	if r == nil || r.db == nil {
		return errors.New("group repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
DELETE FROM group_users
WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}

// DetachUsers drops all user memberships of a group.
func (r *GroupRepository) DetachUsers(ctx context.Context, groupID string) error {
	if r == nil || r.db == nil {
		return errors.New("group repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_users WHERE group_id = $1`, groupID)
	return err
}

// DetachUserEverywhere drops a user from every group. Used when the user is
// deleted.
func (r *GroupRepository) DetachUserEverywhere(ctx context.Context, userID string) error {
	if r == nil || r.db == nil {
		return errors.New("group repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_users WHERE user_id = $1`, userID)
	return err
}

// ListGroupRecipients returns the group's users that can be notified, i.e.
// those with a non-empty phone number.
func (r *GroupRepository) ListGroupRecipients(ctx context.Context, groupID string) ([]directory.Recipient, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("group repo: nil db")
	}
	if groupID == "" {
		return nil, errors.New("group repo: empty group id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT u.id, u.name, u.phone
FROM group_users gu
JOIN users u ON u.id = gu.user_id
WHERE gu.group_id = $1 AND u.phone <> ''
ORDER BY u.name ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecipients(rows)
}

// ListClientRecipients returns every user transitively reachable from a
// client through its points' groups, deduplicated, phone required.
func (r *GroupRepository) ListClientRecipients(ctx context.Context, clientID string) ([]directory.Recipient, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("group repo: nil db")
	}
	if clientID == "" {
		return nil, errors.New("group repo: empty client id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT u.id, u.name, u.phone
FROM points p
JOIN group_users gu ON gu.group_id = p.group_id
JOIN users u ON u.id = gu.user_id
WHERE p.client_id = $1 AND p.group_id <> '' AND u.phone <> ''
ORDER BY u.name ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecipients(rows)
}

// ReconcileMemberships drops membership rows whose group or user no longer
// exists. Safe to re-run.
func (r *GroupRepository) ReconcileMemberships(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("group repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM group_users gu
WHERE NOT EXISTS (SELECT 1 FROM groups g WHERE g.id = gu.group_id)
   OR NOT EXISTS (SELECT 1 FROM users u WHERE u.id = gu.user_id)`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanRecipients(rows *sql.Rows) ([]directory.Recipient, error) {
	var result []directory.Recipient
	for rows.Next() {
		var recipient directory.Recipient
		if err := rows.Scan(&recipient.UserID, &recipient.Name, &recipient.Phone); err != nil {
			return nil, err
		}
		result = append(result, recipient)
	}
	return result, rows.Err()
}
