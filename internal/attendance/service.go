package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/apperr"
	"rollcall/internal/roster"
)

const otpAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// startAttempts bounds retries when a session start or OTP insert loses a
// uniqueness race.
const startAttempts = 3

// Service coordinates attendance sessions, OTP redemption and stats.
type Service struct {
	store   Store
	roster  Roster
	otpTTL  time.Duration
	otpLen  int
	timeout time.Duration
	now     func() time.Time
}

// NewService creates a service backed by a store and a roster.
func NewService(store Store, r Roster, otpTTL time.Duration, otpLen int, storeTimeout time.Duration) *Service {
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	if otpLen <= 0 {
		otpLen = 6
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		store:   store,
		roster:  r,
		otpTTL:  otpTTL,
		otpLen:  otpLen,
		timeout: storeTimeout,
		now:     time.Now,
	}
}

// StartResult is what faculty sees after opening a session.
type StartResult struct {
	Session   Session
	OTP       string
	ExpiresAt time.Time
}

// StartSession deactivates whatever session is active for the section and
// opens a new one with a fresh OTP, all in one transaction. Concurrent starts
// for the same section serialize on the store's uniqueness guarantees; losers
// retry with a new code.
func (s *Service) StartSession(ctx context.Context, section, subject string) (StartResult, error) {
	if section == "" || subject == "" {
		return StartResult{}, apperr.BadRequest("section and subject are required")
	}

	var lastErr error
	for i := 0; i < startAttempts; i++ {
		code, err := s.newOTPCode()
		if err != nil {
			return StartResult{}, err
		}
		now := s.now()
		otp := OTP{
			Code:      code,
			CreatedAt: now,
			ExpiresAt: now.Add(s.otpTTL),
		}

		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		sess, err := s.store.StartSession(cctx, section, subject, otp)
		cancel()
		if err == nil {
			return StartResult{Session: sess, OTP: code, ExpiresAt: otp.ExpiresAt}, nil
		}
		if !errors.Is(err, ErrConflict) {
			return StartResult{}, storeErr(err)
		}
		lastErr = err
	}
	return StartResult{}, storeErr(lastErr)
}

// StopSession closes the active session for the section and burns every
// unused OTP tied to it, so a leaked code dies with the class. No active
// session is a no-op.
func (s *Service) StopSession(ctx context.Context, section string) error {
	if section == "" {
		return apperr.BadRequest("section is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.StopSession(ctx, section); err != nil {
		return storeErr(err)
	}
	return nil
}

// VerifyResult reports the outcome of an OTP redemption.
type VerifyResult struct {
	RecordID      string
	Subject       string
	AlreadyMarked bool
}

// Verify redeems an OTP into at most one attendance record per student per
// session. A student caller may only mark their own attendance; faculty may
// mark on behalf of any student. All validation happens before any write.
func (s *Service) Verify(ctx context.Context, caller roster.Principal, section, username, code, dateStr, timeStr string) (VerifyResult, error) {
	if caller.Role == roster.RoleStudent && caller.Username != username {
		return VerifyResult{}, apperr.Forbidden("the student named in the request")
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return VerifyResult{}, apperr.BadRequest("date must be YYYY-MM-DD")
	}
	clock, err := time.Parse("15:04:05", timeStr)
	if err != nil {
		return VerifyResult{}, apperr.BadRequest("time must be HH:MM:SS")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	enrolled, err := s.roster.StudentInSection(ctx, username, section)
	if err != nil {
		return VerifyResult{}, storeErr(err)
	}
	if !enrolled {
		return VerifyResult{}, apperr.NotFound("student")
	}

	otp, err := s.store.UnusedOTP(ctx, code)
	if err != nil {
		return VerifyResult{}, storeErr(err)
	}
	if otp == nil {
		return VerifyResult{}, apperr.ErrInvalidOTP
	}
	if s.now().After(otp.ExpiresAt) {
		return VerifyResult{}, apperr.ErrExpiredOTP
	}

	sess, err := s.store.SessionByID(ctx, otp.SessionID)
	if err != nil {
		return VerifyResult{}, storeErr(err)
	}
	if sess == nil || !sess.IsActive || sess.Section != section {
		return VerifyResult{}, apperr.ErrInactiveSession
	}

	rec := Record{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Section:   section,
		Username:  username,
		Subject:   sess.Subject,
		Status:    "Present",
		Date:      date,
		Time:      clock,
	}
	inserted, err := s.store.InsertRecord(ctx, rec)
	if err != nil {
		return VerifyResult{}, storeErr(err)
	}
	if !inserted {
		return VerifyResult{Subject: sess.Subject, AlreadyMarked: true}, nil
	}
	return VerifyResult{RecordID: rec.ID, Subject: sess.Subject}, nil
}

// CurrentClass returns the subject of the active session for a section, if any.
func (s *Service) CurrentClass(ctx context.Context, section string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sess, err := s.store.ActiveSession(ctx, section)
	if err != nil {
		return "", false, storeErr(err)
	}
	if sess == nil {
		return "", false, nil
	}
	return sess.Subject, true, nil
}

// Records lists Present records for a section.
func (s *Service) Records(ctx context.Context, section string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	recs, err := s.store.ListRecords(ctx, section)
	if err != nil {
		return nil, storeErr(err)
	}
	return recs, nil
}

// Stats derives per-(student, subject) attendance percentages. Total counts
// every session ever created for that subject in the section, active or not.
func (s *Service) Stats(ctx context.Context, section string) ([]StudentStat, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	totals, err := s.store.SessionCountsBySubject(ctx, section)
	if err != nil {
		return nil, storeErr(err)
	}
	counts, err := s.store.PresentCounts(ctx, section)
	if err != nil {
		return nil, storeErr(err)
	}

	stats := make([]StudentStat, 0, len(counts))
	for _, c := range counts {
		total := totals[c.Subject]
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(c.Attended)/float64(total)*100*100) / 100
		}
		stats = append(stats, StudentStat{
			Username:   c.Username,
			Subject:    c.Subject,
			Attended:   c.Attended,
			Total:      total,
			Percentage: pct,
		})
	}
	return stats, nil
}

// newOTPCode draws otpLen characters uniformly from A-Z0-9.
func (s *Service) newOTPCode() (string, error) {
	buf := make([]byte, s.otpLen)
	max := big.NewInt(int64(len(otpAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = otpAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// storeErr hides transport detail: anything that is not already a typed
// application error surfaces as ServiceUnavailable.
func storeErr(err error) error {
	if _, ok := apperr.AsError(err); ok {
		return err
	}
	return apperr.ErrUnavailable
}
