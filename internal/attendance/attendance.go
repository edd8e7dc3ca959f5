package attendance

import (
	"context"
	"errors"
	"time"
)

// Session is an attendance window for a section. At most one session per
// section is active at any time.
type Session struct {
	ID        string
	Section   string
	Subject   string
	StartTime time.Time
	IsActive  bool
}

// OTP is the short code shared by every student in a live session. It stays
// redeemable until the session stops or the code expires; redemption does not
// consume it.
type OTP struct {
	ID        string
	SessionID string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsUsed    bool
}

// Record is one marked attendance. Unique per (session, username).
type Record struct {
	ID        string
	SessionID string
	Section   string
	Username  string
	Subject   string
	Status    string
	Date      time.Time
	Time      time.Time
	CreatedAt time.Time
}

// PresentCount is a per-(student, subject) aggregate of Present records.
type PresentCount struct {
	Username string
	Subject  string
	Attended int
}

// StudentStat is the derived attendance percentage for one student/subject.
type StudentStat struct {
	Username   string  `json:"username"`
	Subject    string  `json:"subject"`
	Attended   int     `json:"attended"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ErrConflict is returned by the store when a write loses a uniqueness race
// (two concurrent session starts, or an OTP code collision). Callers retry;
// it never reaches the client.
var ErrConflict = errors.New("conflicting concurrent write")

// Store is the persistence surface for sessions, OTPs and records.
// StartSession and StopSession are each a single transaction. Lookups return
// (nil, nil) when nothing matches. InsertRecord reports false when a record
// for (session, username) already exists.
type Store interface {
	StartSession(ctx context.Context, section, subject string, otp OTP) (Session, error)
	StopSession(ctx context.Context, section string) error
	ActiveSession(ctx context.Context, section string) (*Session, error)
	SessionByID(ctx context.Context, id string) (*Session, error)
	UnusedOTP(ctx context.Context, code string) (*OTP, error)
	InsertRecord(ctx context.Context, rec Record) (bool, error)
	ListRecords(ctx context.Context, section string) ([]Record, error)
	SessionCountsBySubject(ctx context.Context, section string) (map[string]int, error)
	PresentCounts(ctx context.Context, section string) ([]PresentCount, error)
}

// Roster resolves student enrollment; implemented by roster.Repository.
type Roster interface {
	StudentInSection(ctx context.Context, username, section string) (bool, error)
}
