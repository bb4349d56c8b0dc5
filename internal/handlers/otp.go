package handlers

import (
	"context"
	"net/http"

	"github.com/ukydev/fleet-relay/internal/directory"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/otp"
)

// OTPService is the OTP lifecycle used by OTPHandler.
type OTPService interface {
	Issue(ctx context.Context, phoneNumber string, purpose models.Purpose) (*otp.IssueResult, error)
	Resend(ctx context.Context, phoneNumber string, purpose models.Purpose) (*otp.IssueResult, error)
	Verify(ctx context.Context, phoneNumber, code string) (*otp.VerifyResult, error)
	CheckPhone(ctx context.Context, phoneNumber string) (*directory.Result, error)
}

// OTPHandler handles phone login requests
type OTPHandler struct {
	otp OTPService
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(svc OTPService) *OTPHandler {
	return &OTPHandler{otp: svc}
}

// SendOTP handles POST /send-otp
func (h *OTPHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.otp.Issue, "OTP sent successfully")
}

// ResendOTP handles POST /resend-otp
func (h *OTPHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.otp.Resend, "OTP resent successfully")
}

type issueFunc func(ctx context.Context, phoneNumber string, purpose models.Purpose) (*otp.IssueResult, error)

func (h *OTPHandler) issue(w http.ResponseWriter, r *http.Request, fn issueFunc, message string) {
	var req models.SendOTPRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := fn(r.Context(), req.PhoneNumber, req.Purpose)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": message,
		"data":    res,
	})
}

// VerifyOTP handles POST /verify-otp
func (h *OTPHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyOTPRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.otp.Verify(r.Context(), req.PhoneNumber, req.OTP)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": "OTP verified successfully",
		"data":    res,
	})
}

// CheckPhone handles POST /check-phone
func (h *OTPHandler) CheckPhone(w http.ResponseWriter, r *http.Request) {
	var req models.CheckPhoneRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.otp.CheckPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "User found"
	if !res.Exists {
		message = "User not found"
	}
	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": message,
		"exists":  res.Exists,
		"data":    res,
	})
}
