// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Drivers selectable for local development.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
	DriverTwilio = "twilio"
	DriverFCM    = "fcm"
	DriverLog    = "log"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything main needs to build the service.
type Config struct {
	Port   string
	AppEnv string

	StoreDriver string
	MongoURI    string
	MongoDB     string

	DirectoryURL     string
	DirectoryTimeout time.Duration
	CountryCode      string

	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int
	OTPEchoCode    bool

	SMSDriver        string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	PushDriver              string
	FirebaseCredentialsFile string

	RedisURL      string
	OTPRateLimit  int
	OTPRateWindow time.Duration

	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string

	LogLevel string
}

// Load reads .env files when present and builds a Config from the
// environment. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		Port:   p.str("PORT", "8080"),
		AppEnv: p.str("APP_ENV", "development"),

		StoreDriver: strings.ToLower(p.str("STORE_DRIVER", DriverMongo)),
		MongoURI:    p.str("MONGO_URI", ""),
		MongoDB:     p.str("MONGO_DB", "fleet_relay"),

		DirectoryURL:     p.str("DIRECTORY_URL", ""),
		DirectoryTimeout: p.duration("DIRECTORY_TIMEOUT", 10*time.Second),
		CountryCode:      p.str("COUNTRY_CODE", "91"),

		OTPLength:      p.integer("OTP_LENGTH", 6),
		OTPTTL:         p.duration("OTP_TTL", 10*time.Minute),
		OTPMaxAttempts: p.integer("OTP_MAX_ATTEMPTS", 5),
		OTPEchoCode:    p.boolean("OTP_ECHO_CODE", false),

		SMSDriver:        strings.ToLower(p.str("SMS_DRIVER", DriverTwilio)),
		TwilioAccountSID: p.str("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  p.str("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: p.str("TWILIO_FROM_NUMBER", ""),

		PushDriver:              strings.ToLower(p.str("PUSH_DRIVER", DriverFCM)),
		FirebaseCredentialsFile: p.str("FIREBASE_CREDENTIALS_FILE", ""),

		RedisURL:      p.str("REDIS_URL", ""),
		OTPRateLimit:  p.integer("OTP_RATE_LIMIT", 0),
		OTPRateWindow: p.duration("OTP_RATE_WINDOW", 15*time.Minute),

		MQTTBrokerURL: p.str("MQTT_BROKER_URL", ""),
		MQTTTopic:     p.str("MQTT_TOPIC", "vehicles/+/events"),
		MQTTClientID:  p.str("MQTT_CLIENT_ID", "fleet-relay"),

		LogLevel: p.str("LOG_LEVEL", "info"),
	}
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(p.errs, "; "))
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "production" || env == "prod"
}

// Validate checks required settings and driver combinations.
func (c *Config) Validate() error {
	var problems []string

	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			problems = append(problems, "MONGO_URI is required")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.DirectoryURL == "" {
		problems = append(problems, "DIRECTORY_URL is required")
	}

	switch c.SMSDriver {
	case DriverTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			problems = append(problems, "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required")
		}
	case DriverLog:
	default:
		problems = append(problems, fmt.Sprintf("unknown SMS_DRIVER %q", c.SMSDriver))
	}

	switch c.PushDriver {
	case DriverFCM, DriverLog:
	default:
		problems = append(problems, fmt.Sprintf("unknown PUSH_DRIVER %q", c.PushDriver))
	}

	if c.OTPLength < 4 || c.OTPLength > 10 {
		problems = append(problems, "OTP_LENGTH must be between 4 and 10")
	}
	if c.OTPTTL <= 0 {
		problems = append(problems, "OTP_TTL must be positive")
	}
	if c.OTPMaxAttempts <= 0 {
		problems = append(problems, "OTP_MAX_ATTEMPTS must be positive")
	}
	if c.OTPRateLimit < 0 {
		problems = append(problems, "OTP_RATE_LIMIT must not be negative")
	}
	if c.OTPRateLimit > 0 && c.OTPRateWindow <= 0 {
		problems = append(problems, "OTP_RATE_WINDOW must be positive")
	}

	if c.IsProduction() {
		if c.OTPEchoCode {
			problems = append(problems, "OTP_ECHO_CODE is not allowed in production")
		}
		if c.StoreDriver == DriverMemory || c.SMSDriver == DriverLog || c.PushDriver == DriverLog {
			problems = append(problems, "memory and log drivers are not allowed in production")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

type parser struct {
	getenv func(string) string
	errs   []string
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s must be an integer", key))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s must be a duration like 10s or 15m", key))
		return def
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s must be true or false", key))
		return def
	}
	return b
}
