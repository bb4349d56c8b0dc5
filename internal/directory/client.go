// Package directory looks up vehicle owners by phone number in the
// external vehicle directory service.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/phone"
)

// ErrLookupFailure is returned when the directory answers with something
// other than a well-formed vehicle list.
var ErrLookupFailure = errors.New("directory lookup failed")

const maxResponseBytes = 10 << 20

// Result is the outcome of an existence check.
type Result struct {
	Exists bool         `json:"exists"`
	User   *models.User `json:"user,omitempty"`
}

// Lookup is the contract the OTP flow depends on.
type Lookup interface {
	CheckUserExists(ctx context.Context, phoneNumber string) (*Result, error)
}

type vehicleRecord struct {
	ID                 string `json:"_id"`
	VehicleID          string `json:"vehicleId"`
	UserID             string `json:"userId"`
	OwnerName          string `json:"ownerName"`
	PhoneNumber        string `json:"phoneNumber"`
	Email              string `json:"email"`
	RegistrationNumber string `json:"registrationNumber"`
	ChassisNumber      string `json:"chassisNumber"`
	Model              string `json:"model"`
}

type listResponse struct {
	Success  *bool            `json:"success"`
	Vehicles *[]vehicleRecord `json:"vehicles"`
}

// Client calls the directory's vehicle list endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	normalizer *phone.Normalizer
}

// NewClient creates a directory client. A zero timeout leaves the
// http.Client without a deadline.
func NewClient(url string, timeout time.Duration, normalizer *phone.Normalizer) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		normalizer: normalizer,
	}
}

// CheckUserExists fetches the vehicle list and returns the first record
// whose phone number shares the last ten digits with phoneNumber.
func (c *Client) CheckUserExists(ctx context.Context, phoneNumber string) (*Result, error) {
	vehicles, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		if !phone.SameSubscriber(v.PhoneNumber, phoneNumber) {
			continue
		}
		return &Result{Exists: true, User: c.toUser(v)}, nil
	}

	log.WithField("phone_suffix", phone.LastDigits(phoneNumber, 4)).Debug("Phone number not in directory")
	return &Result{Exists: false}, nil
}

func (c *Client) fetch(ctx context.Context) ([]vehicleRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrLookupFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailure, err)
	}

	var out listResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrLookupFailure, err)
	}
	if out.Success == nil || !*out.Success {
		return nil, fmt.Errorf("%w: missing or false success flag", ErrLookupFailure)
	}
	if out.Vehicles == nil {
		return nil, fmt.Errorf("%w: missing vehicles array", ErrLookupFailure)
	}
	return *out.Vehicles, nil
}

func (c *Client) toUser(v vehicleRecord) *models.User {
	vehicleID := v.VehicleID
	if vehicleID == "" {
		vehicleID = v.ID
	}
	userID := v.UserID
	if userID == "" {
		userID = vehicleID
	}
	return &models.User{
		UserID:             userID,
		Name:               v.OwnerName,
		PhoneNumber:        c.normalizer.Normalize(v.PhoneNumber),
		Email:              v.Email,
		VehicleID:          vehicleID,
		RegistrationNumber: v.RegistrationNumber,
		ChassisNumber:      v.ChassisNumber,
		VehicleModel:       v.Model,
	}
}
