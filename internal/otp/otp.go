// Package otp issues and verifies one-time passcodes for phone login.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/auth"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/directory"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/phone"
	"github.com/ukydev/fleet-relay/internal/sms"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrOTPNotFound    = errors.New("no pending OTP for this phone number")
	ErrOTPExpired     = errors.New("OTP has expired")
	ErrInvalidOTP     = errors.New("invalid OTP")
	ErrMaxAttempts    = errors.New("maximum verification attempts exceeded")
	ErrGatewayFailure = errors.New("failed to send OTP")
)

// InvalidCodeError is returned for a wrong code while attempts remain.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts remaining", e.AttemptsRemaining)
}

// Is makes errors.Is(err, ErrInvalidOTP) true.
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidOTP
}

// Config holds the OTP policy.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	// EchoCode returns the raw code to the caller. Development only.
	EchoCode bool
}

// DefaultConfig returns a 10 minute TTL and 5 attempts.
func DefaultConfig() Config {
	return Config{TTL: 10 * time.Minute, MaxAttempts: 5}
}

// IssueResult describes a freshly issued code.
type IssueResult struct {
	PhoneNumber string         `json:"phoneNumber"`
	Purpose     models.Purpose `json:"purpose"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	ExpiresIn   int            `json:"expiresIn"`
	Code        string         `json:"otp,omitempty"`
}

// VerifyResult is returned after a successful verification.
type VerifyResult struct {
	PhoneNumber  string       `json:"phoneNumber"`
	User         *models.User `json:"user"`
	SessionToken string       `json:"sessionToken"`
	VerifiedAt   time.Time    `json:"verifiedAt"`
}

// Service implements the OTP lifecycle.
type Service struct {
	otps       db.OTPCollection
	directory  directory.Lookup
	sender     sms.Sender
	codes      *auth.Service
	normalizer *phone.Normalizer
	cfg        Config
	now        func() time.Time
}

// NewService wires the OTP service. Zero config fields take the defaults.
func NewService(otps db.OTPCollection, lookup directory.Lookup, sender sms.Sender, codes *auth.Service, normalizer *phone.Normalizer, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Service{
		otps:       otps,
		directory:  lookup,
		sender:     sender,
		codes:      codes,
		normalizer: normalizer,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Normalize canonicalises a phone number the way every operation does.
func (s *Service) Normalize(phoneNumber string) string {
	return s.normalizer.Normalize(phoneNumber)
}

// CheckPhone reports whether a phone number belongs to a known owner.
func (s *Service) CheckPhone(ctx context.Context, phoneNumber string) (*directory.Result, error) {
	return s.directory.CheckUserExists(ctx, s.Normalize(phoneNumber))
}

// Issue generates a code for a registered phone number, replaces any
// pending code and sends it by SMS. If sending fails the new record is
// kept and ErrGatewayFailure is returned.
func (s *Service) Issue(ctx context.Context, phoneNumber string, purpose models.Purpose) (*IssueResult, error) {
	normalized := s.Normalize(phoneNumber)
	if purpose == "" {
		purpose = models.PurposeLogin
	}

	found, err := s.directory.CheckUserExists(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if !found.Exists {
		return nil, ErrUserNotFound
	}

	code, err := s.codes.GenerateCode()
	if err != nil {
		return nil, err
	}
	hash, err := s.codes.HashCode(code)
	if err != nil {
		return nil, err
	}

	superseded, err := s.otps.DeleteUnverified(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to clear pending OTPs: %w", err)
	}

	now := s.now()
	rec := &models.OTPRecord{
		PhoneNumber: normalized,
		CodeHash:    hash,
		Purpose:     purpose,
		Verified:    false,
		Attempts:    0,
		ExpiresAt:   now.Add(s.cfg.TTL),
		CreatedAt:   now,
	}
	if err := s.otps.InsertOTP(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store OTP: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"otp_id":       rec.ID.Hex(),
		"phone_suffix": phone.LastDigits(normalized, 4),
		"purpose":      purpose,
		"superseded":   superseded,
	})

	if err := s.sender.Send(ctx, normalized, sms.OTPMessage(code, int(s.cfg.TTL.Minutes()))); err != nil {
		logger.WithError(err).Error("OTP stored but SMS delivery failed")
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	logger.Info("OTP issued")

	res := &IssueResult{
		PhoneNumber: normalized,
		Purpose:     purpose,
		ExpiresAt:   rec.ExpiresAt,
		ExpiresIn:   int(s.cfg.TTL.Seconds()),
	}
	if s.cfg.EchoCode {
		res.Code = code
	}
	return res, nil
}

// Resend issues a fresh code, superseding the pending one.
func (s *Service) Resend(ctx context.Context, phoneNumber string, purpose models.Purpose) (*IssueResult, error) {
	return s.Issue(ctx, phoneNumber, purpose)
}

// Verify checks a submitted code against the latest pending record.
func (s *Service) Verify(ctx context.Context, phoneNumber, code string) (*VerifyResult, error) {
	normalized := s.Normalize(phoneNumber)
	logger := log.WithField("phone_suffix", phone.LastDigits(normalized, 4))

	rec, err := s.otps.FindLatestUnverified(ctx, normalized)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}
	logger = logger.WithField("otp_id", rec.ID.Hex())

	if rec.IsExpired(s.now()) {
		s.discard(ctx, rec, logger)
		return nil, ErrOTPExpired
	}
	if rec.Attempts >= s.cfg.MaxAttempts {
		s.discard(ctx, rec, logger)
		return nil, ErrMaxAttempts
	}

	if err := s.codes.CheckCode(code, rec.CodeHash); err != nil {
		if !errors.Is(err, auth.ErrCodeMismatch) {
			return nil, err
		}
		return nil, s.recordFailure(ctx, rec, logger)
	}

	verifiedAt := s.now()
	if err := s.otps.MarkVerified(ctx, rec.ID, verifiedAt); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}

	res := &VerifyResult{PhoneNumber: normalized, VerifiedAt: verifiedAt}
	found, err := s.directory.CheckUserExists(ctx, normalized)
	switch {
	case err != nil:
		logger.WithError(err).Warn("OTP verified but user profile lookup failed")
	case found.Exists:
		res.User = found.User
	default:
		logger.Warn("OTP verified but user is no longer in the directory")
	}

	token, err := s.codes.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	res.SessionToken = token

	logger.Info("OTP verified")
	return res, nil
}

func (s *Service) recordFailure(ctx context.Context, rec *models.OTPRecord, logger *log.Entry) error {
	attempts, err := s.otps.IncrementAttempts(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}
	if attempts >= s.cfg.MaxAttempts {
		s.discard(ctx, rec, logger)
		return ErrMaxAttempts
	}
	logger.WithField("attempts", attempts).Info("Invalid OTP submitted")
	return &InvalidCodeError{AttemptsRemaining: s.cfg.MaxAttempts - attempts}
}

func (s *Service) discard(ctx context.Context, rec *models.OTPRecord, logger *log.Entry) {
	if err := s.otps.DeleteOTP(ctx, rec.ID); err != nil {
		logger.WithError(err).Error("Failed to delete OTP record")
	}
}
