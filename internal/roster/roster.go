package roster

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/apperr"
)

// Roles known to the system.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
)

// Principal is an authenticated identity. Immutable once resolved.
type Principal struct {
	Username string
	Role     string
}

// Repository resolves students and faculty from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Verify checks credentials for the given role. Unknown users and wrong
// passwords produce the same error.
func (r *Repository) Verify(ctx context.Context, username, password, role string) (Principal, error) {
	var table string
	switch role {
	case RoleStudent:
		table = "students"
	case RoleFaculty:
		table = "faculty"
	default:
		return Principal{}, apperr.BadRequest("role must be student or faculty")
	}

	row := r.db.QueryRowContext(ctx, `SELECT password_hash FROM `+table+` WHERE username = $1`, username)
	var hash string
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, apperr.ErrInvalidCredentials
		}
		return Principal{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Principal{}, apperr.ErrInvalidCredentials
	}
	return Principal{Username: username, Role: role}, nil
}

// StudentInSection reports whether username is an enrolled student of section.
func (r *Repository) StudentInSection(ctx context.Context, username, section string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM students WHERE username = $1 AND section = $2
	`, username, section)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
