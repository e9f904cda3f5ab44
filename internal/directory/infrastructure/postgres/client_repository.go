package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	directory "fieldwatch/internal/directory/domain"
)

// ClientRepository is a Postgres repository for clients.
type ClientRepository struct {
	db *sql.DB
}

// NewClientRepository constructs a repository.
func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `id, name, location, ip_address, api_key, enabled, connected, last_report_at, created_at, updated_at`

// Create inserts a client.
func (r *ClientRepository) Create(ctx context.Context, client *directory.Client) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	if client == nil {
		return errors.New("client repo: nil client")
	}
	if err := client.Validate(); err != nil {
		return err
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	if client.UpdatedAt.IsZero() {
		client.UpdatedAt = client.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO clients (
	id, name, location, ip_address, api_key, enabled, connected, last_report_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, NULL, $8, $9
)`, client.ID, client.Name, client.Location, client.IPAddress, client.APIKey,
		client.Enabled, client.Connected, client.CreatedAt, client.UpdatedAt)
	if isUniqueViolation(err) {
		return directory.ErrConflict
	}
	return err
}

// GetByID loads a client by id.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*directory.Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("client repo: nil db")
	}
	if id == "" {
		return nil, errors.New("client repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+clientColumns+`
FROM clients
WHERE id = $1
LIMIT 1`, id)
	return scanClient(row)
}

// GetByAPIKey resolves a client by its secret key.
func (r *ClientRepository) GetByAPIKey(ctx context.Context, apiKey string) (*directory.Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("client repo: nil db")
	}
	if apiKey == "" {
		return nil, errors.New("client repo: empty api key")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+clientColumns+`
FROM clients
WHERE api_key = $1
LIMIT 1`, apiKey)
	return scanClient(row)
}

// List returns all clients ordered by name.
func (r *ClientRepository) List(ctx context.Context) ([]directory.Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("client repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+clientColumns+`
FROM clients
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Client
	for rows.Next() {
		client, err := scanClientRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *client)
	}
	return result, rows.Err()
}

// MarkReported stamps a successful report: connected and lastReportAt=now.
func (r *ClientRepository) MarkReported(ctx context.Context, id string, now time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE clients
SET connected = TRUE, last_report_at = $2, updated_at = $2
WHERE id = $1`, id, now.UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetConnected persists a connectivity flip without touching lastReportAt.
func (r *ClientRepository) SetConnected(ctx context.Context, id string, connected bool, now time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE clients
SET connected = $2, updated_at = $3
WHERE id = $1`, id, connected, now.UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetEnabled toggles the enabled flag.
func (r *ClientRepository) SetEnabled(ctx context.Context, id string, enabled bool, now time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE clients
SET enabled = $2, updated_at = $3
WHERE id = $1`, id, enabled, now.UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ForceOffline clears connectivity state entirely: connected=false and the
// last report timestamp dropped. Used by the client-disable cascade.
func (r *ClientRepository) ForceOffline(ctx context.Context, id string, now time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE clients
SET connected = FALSE, last_report_at = NULL, updated_at = $2
WHERE id = $1`, id, now.UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a client row. Dependent points are cascaded by the
// consistency maintainer, not here.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row *sql.Row) (*directory.Client, error) {
	client, err := scanClientFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

func scanClientRows(rows *sql.Rows) (*directory.Client, error) {
	return scanClientFrom(rows)
}

func scanClientFrom(scanner rowScanner) (*directory.Client, error) {
	var client directory.Client
	var lastReport sql.NullTime
	if err := scanner.Scan(
		&client.ID,
		&client.Name,
		&client.Location,
		&client.IPAddress,
		&client.APIKey,
		&client.Enabled,
		&client.Connected,
		&lastReport,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastReport.Valid {
		client.LastReportAt = lastReport.Time.UTC()
	}
	client.CreatedAt = client.CreatedAt.UTC()
	client.UpdatedAt = client.UpdatedAt.UTC()
	return &client, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}
