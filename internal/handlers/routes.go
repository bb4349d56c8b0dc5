package handlers

import "net/http"

// Server groups every handler behind one mux.
type Server struct {
	OTP           *OTPHandler
	Webhooks      *WebhookHandler
	Telemetry     *TelemetryHandler
	Devices       *DeviceHandler
	Notifications *NotificationHandler
	Health        *HealthHandler
	// OTPLimit wraps the OTP issuing routes. Nil disables rate limiting.
	OTPLimit func(http.Handler) http.Handler
}

// Routes registers every route on a new mux.
func (s *Server) Routes() *http.ServeMux {
	limit := s.OTPLimit
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook", s.Webhooks.Receive)
	mux.HandleFunc("GET /webhook", s.Webhooks.ReceiveGet)
	mux.HandleFunc("GET /webhooks", s.Webhooks.List)
	mux.HandleFunc("GET /webhooks/{id}", s.Webhooks.Get)
	mux.HandleFunc("DELETE /webhooks", s.Webhooks.DeleteAll)
	mux.HandleFunc("GET /webhook-status", s.Webhooks.Status)

	mux.Handle("POST /send-otp", limit(http.HandlerFunc(s.OTP.SendOTP)))
	mux.Handle("POST /resend-otp", limit(http.HandlerFunc(s.OTP.ResendOTP)))
	mux.HandleFunc("POST /verify-otp", s.OTP.VerifyOTP)
	mux.HandleFunc("POST /check-phone", s.OTP.CheckPhone)

	mux.HandleFunc("POST /telemetry", s.Telemetry.Receive)
	mux.HandleFunc("GET /telemetry", s.Telemetry.List)

	mux.HandleFunc("POST /register-device", s.Devices.Register)
	mux.HandleFunc("POST /unregister-device", s.Devices.Unregister)
	mux.HandleFunc("GET /devices", s.Devices.List)
	mux.HandleFunc("POST /send-notification", s.Notifications.Send)

	mux.HandleFunc("GET /health", s.Health.Health)

	return mux
}
