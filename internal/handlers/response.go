// Package handlers implements the HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/directory"
	"github.com/ukydev/fleet-relay/internal/middleware"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/otp"
	"github.com/ukydev/fleet-relay/internal/telemetry"
)

// Error codes returned in the "error" field
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeUserNotFound   = "USER_NOT_FOUND"
	CodeOTPNotFound    = "OTP_NOT_FOUND"
	CodeOTPExpired     = "OTP_EXPIRED"
	CodeInvalidOTP     = "INVALID_OTP"
	CodeMaxAttempts    = "MAX_ATTEMPTS_EXCEEDED"
	CodeGateway        = "GATEWAY_ERROR"
	CodeStore          = "STORE_UNAVAILABLE"
	CodeNotFound       = "NOT_FOUND"
	CodeDeviceNotFound = "DEVICE_NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

const maxRequestBodyBytes = 1 << 20

// Envelope is the JSON body of every response.
type Envelope map[string]interface{}

// requestError is a client mistake reported as VALIDATION_ERROR.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps an error to its status code and envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr  *requestError
		invalid *otp.InvalidCodeError
	)

	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, Envelope{"success": false, "message": reqErr.msg, "error": CodeValidation})
	case errors.Is(err, models.ErrInvalidPayload), errors.Is(err, telemetry.ErrInvalidEvent), errors.Is(err, telemetry.ErrInvalidField),
		errors.Is(err, telemetry.ErrMissingFields):
		writeJSON(w, http.StatusBadRequest, Envelope{"success": false, "message": err.Error(), "error": CodeValidation})
	case errors.Is(err, otp.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, Envelope{"success": false, "message": "User not found. Please check your phone number.", "error": CodeUserNotFound})
	case errors.Is(err, otp.ErrOTPNotFound):
		writeJSON(w, http.StatusNotFound, Envelope{"success": false, "message": "No OTP found for this phone number. Please request a new one.", "error": CodeOTPNotFound})
	case errors.Is(err, otp.ErrOTPExpired):
		writeJSON(w, http.StatusBadRequest, Envelope{"success": false, "message": "OTP has expired. Please request a new one.", "error": CodeOTPExpired})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, Envelope{
			"success":           false,
			"message":           "Invalid OTP",
			"error":             CodeInvalidOTP,
			"attemptsRemaining": invalid.AttemptsRemaining,
		})
	case errors.Is(err, otp.ErrMaxAttempts):
		writeJSON(w, http.StatusTooManyRequests, Envelope{"success": false, "message": "Maximum verification attempts exceeded. Please request a new OTP.", "error": CodeMaxAttempts})
	case errors.Is(err, otp.ErrGatewayFailure):
		logRequestError(r, err)
		writeJSON(w, http.StatusInternalServerError, Envelope{"success": false, "message": err.Error(), "error": CodeGateway})
	case errors.Is(err, directory.ErrLookupFailure):
		// The wrapped error carries the directory URL.
		logRequestError(r, err)
		writeJSON(w, http.StatusInternalServerError, Envelope{"success": false, "message": "Directory service unavailable", "error": CodeGateway})
	case errors.Is(err, db.ErrStoreUnavailable):
		logRequestError(r, err)
		writeJSON(w, http.StatusServiceUnavailable, Envelope{"success": false, "message": "Database unavailable, please retry shortly", "error": CodeStore})
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Envelope{"success": false, "message": "Not found", "error": CodeNotFound})
	default:
		logRequestError(r, err)
		writeJSON(w, http.StatusInternalServerError, Envelope{"success": false, "message": "Internal server error", "error": CodeInternal})
	}
}

func logRequestError(r *http.Request, err error) {
	log.WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	}).WithError(err).Error("Request failed")
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		return nil, badRequest("Failed to read request body")
	}
	return body, nil
}

// decodeRequest reads a JSON body into dst and validates it.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest("Invalid JSON")
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return badRequest("Invalid request")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "numeric":
			msgs = append(msgs, fe.Field()+" must contain only digits")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return badRequest("%s", strings.Join(msgs, "; "))
}
