// Package store persists reservations accepted by the merchant. It backs
// the conflict detector's confirmed-reservation list and the monthly audit
// export.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"seatrelay/internal/models"
)

// DB wraps sql.DB for the reservation agent.
type DB struct {
	*sql.DB
}

// Reservation is one persisted reservation, keyed by its thread root.
type Reservation struct {
	ID           int64
	ThreadRootID string
	Status       models.ReservationStatus
	Time         int64
	TZID         string
	Duration     *int64
	PartySize    int
	CreatedAt    time.Time
}

// Response converts the row into the wire response shape consumed by the
// conflict detector.
func (r *Reservation) Response() models.ReservationResponse {
	t := r.Time
	return models.ReservationResponse{
		Status:   r.Status,
		Time:     &t,
		TZID:     r.TZID,
		Duration: r.Duration,
	}
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_root_id TEXT UNIQUE NOT NULL,
			status TEXT NOT NULL,
			time INTEGER NOT NULL,
			tzid TEXT NOT NULL,
			duration INTEGER,
			party_size INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status_time
			ON reservations(status, time)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// SaveConfirmed upserts a confirmed reservation for a thread. Re-confirming
// the same thread overwrites the previous row rather than duplicating it.
func (db *DB) SaveConfirmed(ctx context.Context, threadRootID string, resp *models.ReservationResponse, partySize int) error {
	if !resp.IsConfirmed() {
		return fmt.Errorf("reservation %s is not confirmed", threadRootID)
	}
	var duration sql.NullInt64
	if resp.Duration != nil {
		duration = sql.NullInt64{Int64: *resp.Duration, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO reservations (thread_root_id, status, time, tzid, duration, party_size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_root_id) DO UPDATE SET
			status = excluded.status,
			time = excluded.time,
			tzid = excluded.tzid,
			duration = excluded.duration,
			party_size = excluded.party_size`,
		threadRootID, string(resp.Status), *resp.Time, resp.TZID, duration, partySize,
	)
	if err != nil {
		return fmt.Errorf("save reservation: %w", err)
	}
	return nil
}

// Cancel marks the thread's reservation cancelled. Unknown threads are a
// no-op.
func (db *DB) Cancel(ctx context.Context, threadRootID string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE reservations SET status = ? WHERE thread_root_id = ?",
		string(models.StatusCancelled), threadRootID,
	)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	return nil
}

// ListConfirmed returns the responses for every confirmed reservation,
// ordered by start time.
func (db *DB) ListConfirmed(ctx context.Context) ([]models.ReservationResponse, error) {
	rows, err := db.queryReservations(ctx,
		"SELECT id, thread_root_id, status, time, tzid, duration, party_size, created_at FROM reservations WHERE status = ? ORDER BY time",
		string(models.StatusConfirmed),
	)
	if err != nil {
		return nil, err
	}
	responses := make([]models.ReservationResponse, 0, len(rows))
	for i := range rows {
		responses = append(responses, rows[i].Response())
	}
	return responses, nil
}

// ListBetween returns reservations of any status starting in [from, to),
// unix seconds, ordered by start time. Used by the monthly export.
func (db *DB) ListBetween(ctx context.Context, from, to int64) ([]Reservation, error) {
	return db.queryReservations(ctx,
		"SELECT id, thread_root_id, status, time, tzid, duration, party_size, created_at FROM reservations WHERE time >= ? AND time < ? ORDER BY time",
		from, to,
	)
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		var duration sql.NullInt64
		var status string
		if err := rows.Scan(&r.ID, &r.ThreadRootID, &status, &r.Time, &r.TZID, &duration, &r.PartySize, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.Status = models.ReservationStatus(status)
		if duration.Valid {
			d := duration.Int64
			r.Duration = &d
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return out, nil
}
