// Package auth generates and checks OTP codes and issues opaque session tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCodeLength = errors.New("code length must be between 4 and 10")
	ErrCodeMismatch      = errors.New("code does not match")
)

// SessionTokenBytes is the entropy of a session token before hex encoding.
const SessionTokenBytes = 32

// Service handles code generation, hashing and session token issuance
type Service struct {
	codeLength int
	hashCost   int
}

// NewService creates a new auth service. hashCost of 0 uses bcrypt.DefaultCost.
func NewService(codeLength, hashCost int) (*Service, error) {
	if codeLength < 4 || codeLength > 10 {
		return nil, ErrInvalidCodeLength
	}
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", hashCost)
	}
	return &Service{codeLength: codeLength, hashCost: hashCost}, nil
}

// CodeLength returns the number of digits in generated codes
func (s *Service) CodeLength() int {
	return s.codeLength
}

// GenerateCode returns a uniformly random numeric code, zero padded
func (s *Service) GenerateCode() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.codeLength)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", s.codeLength, n.Int64()), nil
}

// HashCode hashes a code using bcrypt
func (s *Service) HashCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}
	return string(hash), nil
}

// CheckCode checks a submitted code against a stored hash
func (s *Service) CheckCode(code, hash string) error {
	code = strings.TrimSpace(code)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("failed to compare code: %w", err)
	}
	return nil
}

// GenerateSessionToken returns a hex encoded random bearer token
func (s *Service) GenerateSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
