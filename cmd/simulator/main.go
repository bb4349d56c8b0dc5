package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location is a latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TelemetryEvent is the body posted to /telemetry.
type TelemetryEvent struct {
	DeviceID  string                 `json:"deviceId"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Thresholds that turn vehicle state changes into events.
const (
	batteryLowPct      = 20.0
	batteryCriticalPct = 10.0
	batteryFullPct     = 100.0
	overspeedKmh       = 80.0
)

var cities = []Location{
	{Lat: 12.9716, Lon: 77.5946}, // Bengaluru
	{Lat: 19.0760, Lon: 72.8777}, // Mumbai
	{Lat: 28.6139, Lon: 77.2090}, // Delhi
	{Lat: 13.0827, Lon: 80.2707}, // Chennai
	{Lat: 17.3850, Lon: 78.4867}, // Hyderabad
	{Lat: 18.5204, Lon: 73.8567}, // Pune
	{Lat: 22.5726, Lon: 88.3639}, // Kolkata
	{Lat: 23.0225, Lon: 72.5714}, // Ahmedabad
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func haversineKm(a, b Location) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

func lerp(a, b Location, t float64) Location {
	return Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lon: a.Lon + (b.Lon-a.Lon)*t}
}

// VehicleState is one simulated electric two-wheeler.
type VehicleState struct {
	VehicleID   string
	Position    Location
	Destination Location
	SpeedKmh    float64
	BatteryPct  float64
	Charging    bool
	IgnitionOn  bool
}

// step moves the vehicle for tickSec seconds and returns the events the
// change produced.
func step(s *VehicleState, tickSec float64) []string {
	prev := *s

	if s.Charging {
		s.SpeedKmh = 0
		s.BatteryPct += 5
		if s.BatteryPct >= batteryFullPct {
			s.BatteryPct = batteryFullPct
			s.Charging = false
		}
		return transitions(prev, *s)
	}

	s.IgnitionOn = true
	s.SpeedKmh += (rand.Float64()*2 - 1) * 6
	s.SpeedKmh = math.Max(15, math.Min(95, s.SpeedKmh))

	km := s.SpeedKmh * (tickSec / 3600.0)
	if dist := haversineKm(s.Position, s.Destination); dist <= km || dist == 0 {
		s.Position = s.Destination
		s.Destination = jitterLocation(cities[rand.Intn(len(cities))], 2000)
	} else {
		s.Position = lerp(s.Position, s.Destination, km/dist)
	}

	s.BatteryPct -= km * 0.8
	if s.BatteryPct <= 5 {
		s.BatteryPct = 5
		s.Charging = true
		s.IgnitionOn = false
	}
	return transitions(prev, *s)
}

// transitions compares two states and names the events between them.
func transitions(prev, cur VehicleState) []string {
	var events []string
	if !prev.IgnitionOn && cur.IgnitionOn {
		events = append(events, "IGNITION_ON")
	}
	if prev.IgnitionOn && !cur.IgnitionOn {
		events = append(events, "IGNITION_OFF")
	}
	if prev.BatteryPct > batteryLowPct && cur.BatteryPct <= batteryLowPct && cur.BatteryPct > batteryCriticalPct {
		events = append(events, "BATTERY_LOW")
	}
	if prev.BatteryPct > batteryCriticalPct && cur.BatteryPct <= batteryCriticalPct {
		events = append(events, "BATTERY_CRITICAL_LOW")
	}
	if prev.SpeedKmh <= overspeedKmh && cur.SpeedKmh > overspeedKmh {
		events = append(events, "OVERSPEED")
	}
	if !prev.Charging && cur.Charging {
		events = append(events, "CHARGING_STARTED")
	}
	if prev.Charging && !cur.Charging {
		events = append(events, "CHARGING_COMPLETED")
	}
	return events
}

func telemetryFromState(s *VehicleState, event string) TelemetryEvent {
	return TelemetryEvent{
		DeviceID:  s.VehicleID,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: map[string]interface{}{
			"soc":      math.Round(s.BatteryPct*10) / 10,
			"speed":    math.Round(s.SpeedKmh*10) / 10,
			"location": s.Position,
			"charging": s.Charging,
		},
	}
}

// Client posts to the relay API.
type Client struct {
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL, webhookSecret string) *Client {
	return &Client{
		baseURL:       baseURL,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.httpClient.Do(req)
}

// sampleWebhook is a signup event as a third party would send it.
func sampleWebhook(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"event": "user.signup",
		"user": map[string]interface{}{
			"id":    "12345",
			"email": "test@example.com",
			"name":  "Test User",
		},
		"timestamp": now.UTC().Format(time.RFC3339),
		"metadata": map[string]interface{}{
			"source":   "web",
			"campaign": "summer_2024",
		},
	}
}

// SendWebhook posts the sample webhook and returns the HTTP status.
func (c *Client) SendWebhook(ctx context.Context) (int, error) {
	resp, err := c.postJSON(ctx, "/webhook", sampleWebhook(time.Now()), map[string]string{
		"X-Webhook-Secret": c.webhookSecret,
		"X-Event-Type":     "user.signup",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		log.WithFields(log.Fields{"status": resp.StatusCode, "id": result["id"]}).Info("Sent sample webhook")
	}
	return resp.StatusCode, nil
}

// RegisterDevice registers a fake push token for a vehicle so telemetry
// notifications have a target.
func (c *Client) RegisterDevice(ctx context.Context, vehicleID string) error {
	resp, err := c.postJSON(ctx, "/register-device", map[string]string{
		"token":     "sim-token-" + vehicleID,
		"vehicleId": vehicleID,
		"platform":  "android",
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device registration failed with status: %d", resp.StatusCode)
	}
	return nil
}

// SendTelemetry posts one event.
func (c *Client) SendTelemetry(ctx context.Context, ev TelemetryEvent) error {
	resp, err := c.postJSON(ctx, "/telemetry", ev, nil)
	if err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	defer resp.Body.Close()
	log.WithFields(log.Fields{"vehicle_id": ev.DeviceID, "event": ev.Event, "status": resp.Status}).Info("Sent telemetry")
	return nil
}

func simulateVehicle(ctx context.Context, c *Client, s *VehicleState, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		for _, event := range step(s, interval.Seconds()) {
			if err := c.SendTelemetry(ctx, telemetryFromState(s, event)); err != nil {
				log.WithError(err).Error("Failed to send telemetry")
			}
		}
	}
}

func newFleet(size int) []*VehicleState {
	states := make([]*VehicleState, 0, size)
	for i := 0; i < size; i++ {
		start := jitterLocation(cities[rand.Intn(len(cities))], 500)
		states = append(states, &VehicleState{
			VehicleID:   fmt.Sprintf("SIM-EV-%03d", i+1),
			Position:    start,
			Destination: jitterLocation(cities[rand.Intn(len(cities))], 2000),
			SpeedKmh:    30 + rand.Float64()*30,
			BatteryPct:  25 + rand.Float64()*75,
		})
	}
	return states
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		secret = "test-secret-123"
	}
	fleetSize := envInt("FLEET_SIZE", 5)
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting fleet simulation")

	client := NewClient(apiURL, secret)
	if _, err := client.SendWebhook(ctx); err != nil {
		log.WithError(err).Error("Sample webhook failed. Is the server running?")
		return
	}

	states := newFleet(fleetSize)
	for _, s := range states {
		if err := client.RegisterDevice(ctx, s.VehicleID); err != nil {
			log.WithError(err).WithField("vehicle_id", s.VehicleID).Warn("Device registration failed")
		}
		go simulateVehicle(ctx, client, s, interval)
	}

	log.Info("Telemetry simulation started")
	<-ctx.Done()
	log.Info("Simulation stopped")
}
