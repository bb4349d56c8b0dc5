package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func validEnv() map[string]string {
	return map[string]string{
		"MONGO_URI":          "mongodb://localhost:27017",
		"DIRECTORY_URL":      "https://directory.example.com/vehicles",
		"TWILIO_ACCOUNT_SID": "AC123",
		"TWILIO_AUTH_TOKEN":  "secret",
		"TWILIO_FROM_NUMBER": "+15005550006",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(validEnv()))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "fleet_relay", cfg.MongoDB)
	assert.Equal(t, "91", cfg.CountryCode)
	assert.Equal(t, 10*time.Second, cfg.DirectoryTimeout)
	assert.Equal(t, 6, cfg.OTPLength)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.False(t, cfg.OTPEchoCode)
	assert.Equal(t, DriverTwilio, cfg.SMSDriver)
	assert.Equal(t, DriverFCM, cfg.PushDriver)
	assert.Equal(t, 0, cfg.OTPRateLimit)
	assert.Equal(t, 15*time.Minute, cfg.OTPRateWindow)
	assert.Equal(t, "vehicles/+/events", cfg.MQTTTopic)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	env := validEnv()
	env["PORT"] = "9090"
	env["OTP_TTL"] = "5m"
	env["OTP_MAX_ATTEMPTS"] = "3"
	env["OTP_ECHO_CODE"] = "true"
	env["STORE_DRIVER"] = "Memory"
	env["OTP_RATE_LIMIT"] = "10"

	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 3, cfg.OTPMaxAttempts)
	assert.True(t, cfg.OTPEchoCode)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 10, cfg.OTPRateLimit)
}

func TestFromEnv_ParseErrors(t *testing.T) {
	env := validEnv()
	env["OTP_LENGTH"] = "six"
	env["OTP_TTL"] = "ten minutes"
	env["OTP_ECHO_CODE"] = "maybe"

	_, err := FromEnv(envMap(env))
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "OTP_LENGTH must be an integer")
	assert.Contains(t, err.Error(), "OTP_TTL must be a duration")
	assert.Contains(t, err.Error(), "OTP_ECHO_CODE must be true or false")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		change  func(env map[string]string)
		wantErr string
	}{
		{
			name:    "missing mongo uri",
			change:  func(env map[string]string) { delete(env, "MONGO_URI") },
			wantErr: "MONGO_URI is required",
		},
		{
			name: "memory store needs no mongo uri",
			change: func(env map[string]string) {
				delete(env, "MONGO_URI")
				env["STORE_DRIVER"] = "memory"
			},
		},
		{
			name:    "missing directory url",
			change:  func(env map[string]string) { delete(env, "DIRECTORY_URL") },
			wantErr: "DIRECTORY_URL is required",
		},
		{
			name:    "missing twilio credentials",
			change:  func(env map[string]string) { delete(env, "TWILIO_AUTH_TOKEN") },
			wantErr: "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required",
		},
		{
			name: "log sms driver needs no credentials",
			change: func(env map[string]string) {
				delete(env, "TWILIO_ACCOUNT_SID")
				delete(env, "TWILIO_AUTH_TOKEN")
				env["SMS_DRIVER"] = "log"
			},
		},
		{
			name:    "unknown push driver",
			change:  func(env map[string]string) { env["PUSH_DRIVER"] = "apns" },
			wantErr: `unknown PUSH_DRIVER "apns"`,
		},
		{
			name:    "otp length out of range",
			change:  func(env map[string]string) { env["OTP_LENGTH"] = "3" },
			wantErr: "OTP_LENGTH must be between 4 and 10",
		},
		{
			name: "echo code in production",
			change: func(env map[string]string) {
				env["APP_ENV"] = "production"
				env["OTP_ECHO_CODE"] = "true"
			},
			wantErr: "OTP_ECHO_CODE is not allowed in production",
		},
		{
			name: "log driver in production",
			change: func(env map[string]string) {
				env["APP_ENV"] = "prod"
				env["PUSH_DRIVER"] = "log"
			},
			wantErr: "memory and log drivers are not allowed in production",
		},
		{
			name: "rate limit without window",
			change: func(env map[string]string) {
				env["OTP_RATE_LIMIT"] = "5"
				env["OTP_RATE_WINDOW"] = "0s"
			},
			wantErr: "OTP_RATE_WINDOW must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnv()
			tt.change(env)
			cfg, err := FromEnv(envMap(env))
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MQTT_CLIENT_ID=relay-from-file\n"), 0o600))

	t.Setenv("MQTT_CLIENT_ID", "")
	require.NoError(t, os.Unsetenv("MQTT_CLIENT_ID"))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "relay-from-file", cfg.MQTTClientID)
}

func TestLoad_ProcessEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7000\n"), 0o600))
	t.Setenv("PORT", "7100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Port)
}
