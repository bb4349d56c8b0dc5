package models

// User is the owner profile resolved from the vehicle directory.
type User struct {
	UserID             string `json:"userId"`
	Name               string `json:"name"`
	PhoneNumber        string `json:"phoneNumber"`
	Email              string `json:"email,omitempty"`
	VehicleID          string `json:"vehicleId"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	ChassisNumber      string `json:"chassisNumber,omitempty"`
	VehicleModel       string `json:"vehicleModel,omitempty"`
}
