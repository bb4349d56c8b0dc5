package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Purpose is the reason an OTP was requested.
type Purpose string

const (
	PurposeLogin         Purpose = "login"
	PurposeSignup        Purpose = "signup"
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "password_reset"
)

// IsValidPurpose checks if a purpose is one of the known values
func IsValidPurpose(p Purpose) bool {
	switch p {
	case PurposeLogin, PurposeSignup, PurposeVerification, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// OTPRecord is a one-time passcode issued to a phone number.
// Only the bcrypt hash of the code is stored.
type OTPRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PhoneNumber string             `bson:"phone_number" json:"phoneNumber"`
	CodeHash    string             `bson:"code_hash" json:"-"`
	Purpose     Purpose            `bson:"purpose" json:"purpose"`
	Verified    bool               `bson:"verified" json:"verified"`
	Attempts    int                `bson:"attempts" json:"attempts"`
	ExpiresAt   time.Time          `bson:"expires_at" json:"expiresAt"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	VerifiedAt  *time.Time         `bson:"verified_at,omitempty" json:"verifiedAt,omitempty"`
}

// IsExpired reports whether the record is past its expiry at the given time
func (r *OTPRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// SendOTPRequest is the body of /send-otp and /resend-otp
type SendOTPRequest struct {
	PhoneNumber string  `json:"phoneNumber" validate:"required"`
	Purpose     Purpose `json:"purpose" validate:"omitempty,oneof=login signup verification password_reset"`
}

// VerifyOTPRequest is the body of /verify-otp
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	OTP         string `json:"otp" validate:"required,numeric"`
}

// CheckPhoneRequest is the body of /check-phone
type CheckPhoneRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}
