package hotspot

import (
	"context"
	"database/sql"
	"errors"
)

// Repository maps sections to the classroom WiFi SSID students must be on.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SSID returns the SSID for a section; empty string and false when none is
// configured.
func (r *Repository) SSID(ctx context.Context, section string) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT ssid FROM class_hotspots WHERE section = $1`, section)
	var ssid string
	if err := row.Scan(&ssid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return ssid, true, nil
}

// UpdateSSID upserts the SSID for a section.
func (r *Repository) UpdateSSID(ctx context.Context, section, ssid string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_hotspots (section, ssid)
		VALUES ($1, $2)
		ON CONFLICT (section) DO UPDATE SET ssid = EXCLUDED.ssid
	`, section, ssid)
	return err
}
