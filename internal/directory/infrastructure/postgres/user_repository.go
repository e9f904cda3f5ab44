package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	directory "fieldwatch/internal/directory/domain"
)

// UserRepository is a Postgres repository for users.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, password_hash, name, phone, role, created_at`

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, user *directory.User) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	if user == nil {
		return errors.New("user repo: nil user")
	}
	if err := user.Validate(); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, username, password_hash, name, phone, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.PasswordHash, user.Name, user.Phone, user.Role, user.CreatedAt)
	if isUniqueViolation(err) {
		return directory.ErrConflict
	}
	return err
}

// GetByID loads a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*directory.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	if id == "" {
		return nil, errors.New("user repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = $1
LIMIT 1`, id)
	return scanUser(row)
}

// GetByUsername loads a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*directory.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	if username == "" {
		return nil, errors.New("user repo: empty username")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE username = $1
LIMIT 1`, username)
	return scanUser(row)
}

// List returns all users ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]directory.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.User
	for rows.Next() {
		var user directory.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.Phone, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		result = append(result, user)
	}
	return result, rows.Err()
}

// Update overwrites the mutable fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *directory.User) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	if user == nil {
		return errors.New("user repo: nil user")
	}
	if err := user.Validate(); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE users
SET username = $2, password_hash = $3, name = $4, phone = $5, role = $6
WHERE id = $1`, user.ID, user.Username, user.PasswordHash, user.Name, user.Phone, user.Role)
	if isUniqueViolation(err) {
		return directory.ErrConflict
	}
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a user row. Group memberships are detached by the caller.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func scanUser(row *sql.Row) (*directory.User, error) {
	var user directory.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.Phone, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
