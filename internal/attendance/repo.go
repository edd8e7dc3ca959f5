package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists sessions, OTPs and records in Postgres. The schema
// backs the invariants: a partial unique index allows at most one active
// session per section, otp_code is unique among unused codes, and
// (session_id, username) is unique on attendance_records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StartSession deactivates the section's active sessions, inserts the new
// session and its OTP, all in one transaction. Losing a race on the active
// session index or the OTP code returns ErrConflict.
func (r *Repository) StartSession(ctx context.Context, section, subject string, otp OTP) (Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE active_sessions SET is_active = FALSE
		WHERE section = $1 AND is_active
	`, section); err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:        uuid.NewString(),
		Section:   section,
		Subject:   subject,
		StartTime: otp.CreatedAt,
		IsActive:  true,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO active_sessions (id, section, subject, start_time, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, sess.ID, sess.Section, sess.Subject, sess.StartTime); err != nil {
		return Session{}, conflictOr(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_otps (id, session_id, otp_code, created_at, expires_at, is_used)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, uuid.NewString(), sess.ID, otp.Code, otp.CreatedAt, otp.ExpiresAt); err != nil {
		return Session{}, conflictOr(err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, conflictOr(err)
	}
	return sess, nil
}

// StopSession closes the active session and invalidates its unused OTPs in
// one transaction. No active session is a no-op.
func (r *Repository) StopSession(ctx context.Context, section string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE session_otps SET is_used = TRUE
		WHERE is_used = FALSE AND session_id IN (
			SELECT id FROM active_sessions WHERE section = $1 AND is_active
		)
	`, section); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE active_sessions SET is_active = FALSE
		WHERE section = $1 AND is_active
	`, section); err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveSession returns the active session for a section, or (nil, nil).
func (r *Repository) ActiveSession(ctx context.Context, section string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, section, subject, start_time, is_active
		FROM active_sessions WHERE section = $1 AND is_active
	`, section)
	return scanSession(row)
}

// SessionByID returns a session by id, or (nil, nil).
func (r *Repository) SessionByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, section, subject, start_time, is_active
		FROM active_sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// UnusedOTP looks an unused code up, or (nil, nil).
func (r *Repository) UnusedOTP(ctx context.Context, code string) (*OTP, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, otp_code, created_at, expires_at, is_used
		FROM session_otps WHERE otp_code = $1 AND is_used = FALSE
	`, code)
	var otp OTP
	if err := row.Scan(&otp.ID, &otp.SessionID, &otp.Code, &otp.CreatedAt, &otp.ExpiresAt, &otp.IsUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &otp, nil
}

// InsertRecord writes a record unless one already exists for the session and
// username. Reports false for duplicates, including concurrent ones.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, section, username, subject, status, date, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, username) DO NOTHING
	`, rec.ID, rec.SessionID, rec.Section, rec.Username, rec.Subject, rec.Status, rec.Date, rec.Time)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetRecord returns a single record by id; used by the worker.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, section, username, subject, status, date, time, created_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Section, &rec.Username, &rec.Subject, &rec.Status, &rec.Date, &rec.Time, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns Present records for a section.
func (r *Repository) ListRecords(ctx context.Context, section string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, section, username, subject, status, date, time, created_at
		FROM attendance_records
		WHERE section = $1 AND status = 'Present'
		ORDER BY date, time
	`, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Section, &rec.Username, &rec.Subject, &rec.Status, &rec.Date, &rec.Time, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SessionCountsBySubject counts every session ever created per subject for a
// section, active or not.
func (r *Repository) SessionCountsBySubject(ctx context.Context, section string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject, COUNT(*) FROM active_sessions
		WHERE section = $1 GROUP BY subject
	`, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]int)
	for rows.Next() {
		var subject string
		var n int
		if err := rows.Scan(&subject, &n); err != nil {
			return nil, err
		}
		totals[subject] = n
	}
	return totals, rows.Err()
}

// PresentCounts aggregates Present records per student and subject.
func (r *Repository) PresentCounts(ctx context.Context, section string) ([]PresentCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username, subject, COUNT(*) FROM attendance_records
		WHERE section = $1 AND status = 'Present'
		GROUP BY username, subject
	`, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts []PresentCount
	for rows.Next() {
		var c PresentCount
		if err := rows.Scan(&c.Username, &c.Subject, &c.Attended); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Section, &sess.Subject, &sess.StartTime, &sess.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// conflictOr maps Postgres unique violations to ErrConflict.
func conflictOr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

var _ Store = (*Repository)(nil)
