// Package storage provides persistence for Dayflow.
package storage

import (
	"database/sql"
	"time"

	"github.com/dayflow/dayflow/internal/core"
)

// ConnectionStore handles calendar connection persistence
type ConnectionStore struct {
	db *DB
}

// NewConnectionStore creates a new connection store
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

const connectionColumns = `id, owner_id, provider, direction, policy,
	credential_id, calendar_id, is_active, last_sync_at, last_error,
	created_at, updated_at`

// Create persists a new calendar connection
func (s *ConnectionStore) Create(conn *core.CalendarConnection) error {
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	_, err := s.db.conn.Exec(`
		INSERT INTO calendar_connections (
		    id, owner_id, provider, direction, policy, credential_id,
		    calendar_id, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		conn.ID, conn.OwnerID, conn.Provider, conn.Direction, conn.Policy,
		conn.CredentialID, conn.CalendarID, conn.IsActive,
		conn.CreatedAt, conn.UpdatedAt,
	)

	return err
}

// GetByID returns a connection by ID
func (s *ConnectionStore) GetByID(id core.ConnectionID) (*core.CalendarConnection, error) {
	row := s.db.conn.QueryRow(`
		SELECT `+connectionColumns+` FROM calendar_connections WHERE id = ?
	`, id)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ListActive returns a user's active connections
func (s *ConnectionStore) ListActive(ownerID string) ([]*core.CalendarConnection, error) {
	rows, err := s.db.conn.Query(`
		SELECT `+connectionColumns+` FROM calendar_connections
		WHERE owner_id = ? AND is_active = 1
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*core.CalendarConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// ListAllActive returns every active connection across all users, the
// working set of a background reconciliation pass.
func (s *ConnectionStore) ListAllActive() ([]*core.CalendarConnection, error) {
	rows, err := s.db.conn.Query(`
		SELECT ` + connectionColumns + ` FROM calendar_connections
		WHERE is_active = 1
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*core.CalendarConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// MarkSynced advances the sync cursor after a fully successful pass.
func (s *ConnectionStore) MarkSynced(id core.ConnectionID, at time.Time) error {
	_, err := s.db.conn.Exec(`
		UPDATE calendar_connections
		SET last_sync_at = ?, last_error = '', updated_at = ?
		WHERE id = ?
	`, at.UTC(), time.Now().UTC(), id)
	return err
}

// MarkFailed records the most recent error without moving the cursor.
func (s *ConnectionStore) MarkFailed(id core.ConnectionID, errMsg string) error {
	_, err := s.db.conn.Exec(`
		UPDATE calendar_connections
		SET last_error = ?, updated_at = ?
		WHERE id = ?
	`, errMsg, time.Now().UTC(), id)
	return err
}

// SetActive enables or disables a connection
func (s *ConnectionStore) SetActive(id core.ConnectionID, active bool) error {
	res, err := s.db.conn.Exec(`
		UPDATE calendar_connections SET is_active = ?, updated_at = ? WHERE id = ?
	`, active, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrConnectionNotFound
	}
	return nil
}

func scanConnection(row rowScanner) (*core.CalendarConnection, error) {
	conn := &core.CalendarConnection{}
	var credentialID, calendarID, lastError sql.NullString
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&conn.ID, &conn.OwnerID, &conn.Provider, &conn.Direction,
		&conn.Policy, &credentialID, &calendarID, &conn.IsActive,
		&lastSyncAt, &lastError, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.CredentialID = credentialID.String
	conn.CalendarID = calendarID.String
	conn.LastError = lastError.String
	if lastSyncAt.Valid {
		conn.LastSyncAt = &lastSyncAt.Time
	}

	return conn, nil
}
