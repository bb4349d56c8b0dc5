package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/auth"
	"github.com/ukydev/fleet-relay/internal/config"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/directory"
	"github.com/ukydev/fleet-relay/internal/handlers"
	"github.com/ukydev/fleet-relay/internal/middleware"
	"github.com/ukydev/fleet-relay/internal/notify"
	"github.com/ukydev/fleet-relay/internal/otp"
	"github.com/ukydev/fleet-relay/internal/phone"
	"github.com/ukydev/fleet-relay/internal/push"
	"github.com/ukydev/fleet-relay/internal/sms"
	"github.com/ukydev/fleet-relay/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// storage is the set of collections the handlers run on.
type storage struct {
	name      string
	otps      db.OTPCollection
	devices   db.DeviceCollection
	telemetry db.TelemetryCollection
	webhooks  db.WebhookCollection
	pinger    db.Pinger
	close     func(ctx context.Context) error
}

func openStorage(cfg *config.Config) storage {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("Using in-memory storage, data is lost on restart")
		mem := db.NewMemoryStore()
		return storage{
			name:      "memory",
			otps:      mem,
			devices:   mem,
			telemetry: mem,
			webhooks:  mem,
			pinger:    mem,
			close:     func(context.Context) error { return nil },
		}
	}

	store := db.NewStore(cfg.MongoURI, cfg.MongoDB)
	return storage{
		name:      "MongoDB",
		otps:      &db.MongoOTPCollection{Store: store},
		devices:   &db.MongoDeviceCollection{Store: store},
		telemetry: &db.MongoTelemetryCollection{Store: store},
		webhooks:  &db.MongoWebhookCollection{Store: store},
		pinger:    store,
		close:     store.Close,
	}
}

// app is the wired service, ready to serve.
type app struct {
	handler    http.Handler
	storage    storage
	subscriber *telemetry.Subscriber
	redis      *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	normalizer := phone.NewNormalizer(cfg.CountryCode)

	codes, err := auth.NewService(cfg.OTPLength, 0)
	if err != nil {
		return nil, err
	}

	var sender sms.Sender = sms.LogSender{}
	if cfg.SMSDriver == config.DriverTwilio {
		twilioSender, err := sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		if err != nil {
			return nil, err
		}
		sender = twilioSender
	}

	var gateway push.Gateway = push.LogGateway{}
	if cfg.PushDriver == config.DriverFCM {
		fcm, err := push.NewFCMGateway(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		gateway = fcm
	}

	a := &app{storage: openStorage(cfg)}
	st := a.storage

	otpSvc := otp.NewService(
		st.otps,
		directory.NewClient(cfg.DirectoryURL, cfg.DirectoryTimeout, normalizer),
		sender,
		codes,
		normalizer,
		otp.Config{TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts, EchoCode: cfg.OTPEchoCode},
	)
	dispatcher := notify.NewDispatcher(st.devices, gateway)
	router := telemetry.NewRouter(st.telemetry, dispatcher)

	srv := &handlers.Server{
		OTP:           handlers.NewOTPHandler(otpSvc),
		Webhooks:      handlers.NewWebhookHandler(st.webhooks, st.devices, dispatcher, st.name),
		Telemetry:     handlers.NewTelemetryHandler(router, st.telemetry),
		Devices:       handlers.NewDeviceHandler(st.devices, normalizer),
		Notifications: handlers.NewNotificationHandler(dispatcher),
		Health:        handlers.NewHealthHandler(st.pinger),
	}

	if cfg.OTPRateLimit > 0 {
		var limiter middleware.Limiter
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			a.redis = redis.NewClient(opts)
			limiter = middleware.NewRedisLimiter(a.redis, "ratelimit:otp", cfg.OTPRateLimit, cfg.OTPRateWindow)
		} else {
			limiter = middleware.NewMemoryLimiter(cfg.OTPRateLimit, cfg.OTPRateWindow)
		}
		srv.OTPLimit = middleware.RateLimit(limiter, middleware.PhoneKey(otpSvc.Normalize))
		log.WithFields(log.Fields{
			"limit":  cfg.OTPRateLimit,
			"window": cfg.OTPRateWindow.String(),
			"redis":  a.redis != nil,
		}).Info("OTP rate limiting enabled")
	}

	if cfg.MQTTBrokerURL != "" {
		a.subscriber = telemetry.NewSubscriber(telemetry.SubscriberConfig{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			QoS:       1,
		}, router)
	}

	a.handler = middleware.Chain(srv.Routes(), middleware.RequestID, middleware.Logger, middleware.Recover)
	return a, nil
}

// close releases everything newApp opened.
func (a *app) close(ctx context.Context) {
	if a.subscriber != nil {
		a.subscriber.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if err := a.storage.close(ctx); err != nil {
		log.WithError(err).Warn("Failed to close store")
	}
}

func configureLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	configureLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	if a.subscriber != nil {
		if err := a.subscriber.Start(ctx); err != nil {
			return err
		}
		log.WithFields(log.Fields{"broker": cfg.MQTTBrokerURL, "topic": cfg.MQTTTopic}).Info("MQTT telemetry subscriber started")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":  cfg.Port,
			"env":   cfg.AppEnv,
			"store": a.storage.name,
		}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}
