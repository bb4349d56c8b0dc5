// Package push sends notifications to mobile devices.
package push

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// MaxMulticastTokens is the largest token list one multicast call accepts.
const MaxMulticastTokens = 500

// ErrTooManyTokens is returned when a multicast exceeds MaxMulticastTokens.
var ErrTooManyTokens = errors.New("too many tokens for one multicast")

// Priority values for Android delivery
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// Message is a platform independent notification.
type Message struct {
	Title     string
	Body      string
	Data      map[string]string
	Priority  string
	Sound     string
	ChannelID string
	Badge     int
}

// SendResult is the outcome for one token.
type SendResult struct {
	Token   string
	Success bool
	Err     error
}

// BatchResult is the outcome of one multicast call. Responses are in the
// same order as the tokens passed in.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResult
}

// FailedTokens returns the tokens whose delivery failed.
func (b *BatchResult) FailedTokens() []string {
	var out []string
	for _, r := range b.Responses {
		if !r.Success {
			out = append(out, r.Token)
		}
	}
	return out
}

// SucceededTokens returns the tokens that were delivered.
func (b *BatchResult) SucceededTokens() []string {
	var out []string
	for _, r := range b.Responses {
		if r.Success {
			out = append(out, r.Token)
		}
	}
	return out
}

// Gateway sends one message to many device tokens.
type Gateway interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) (*BatchResult, error)
}

// LogGateway logs notifications and reports every token as delivered.
// For local development.
type LogGateway struct{}

// SendMulticast logs the message.
func (LogGateway) SendMulticast(ctx context.Context, tokens []string, msg Message) (*BatchResult, error) {
	if len(tokens) > MaxMulticastTokens {
		return nil, ErrTooManyTokens
	}
	log.WithFields(log.Fields{
		"title":  msg.Title,
		"body":   msg.Body,
		"tokens": len(tokens),
	}).Info("Push notification (log driver)")

	res := &BatchResult{SuccessCount: len(tokens), Responses: make([]SendResult, len(tokens))}
	for i, token := range tokens {
		res.Responses[i] = SendResult{Token: token, Success: true}
	}
	return res, nil
}
