// Package events publishes auth lifecycle events to NATS so surrounding
// services can react to credential changes (e.g. force a login flow).
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/metrics"
)

const (
	TypeLogin          = "auth.login"
	TypeTokenRefreshed = "auth.token_refreshed"
	TypeAuthLost       = "auth.lost"
)

// Event is the envelope published for every auth lifecycle change.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// jetStream is the slice of nats.JetStreamContext the publisher needs.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes auth lifecycle envelopes.
type Publisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	js      jetStream
	subject string
	service string
}

// New creates a Publisher with JetStream enabled.
func New(logger *zap.Logger, nc *nats.Conn, subject, service string) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		logger:  logger,
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// LoginSucceeded emits an auth.login event.
func (p *Publisher) LoginSucceeded() error {
	return p.publish(TypeLogin)
}

// TokenRefreshed emits an auth.token_refreshed event.
func (p *Publisher) TokenRefreshed() error {
	return p.publish(TypeTokenRefreshed)
}

// AuthLost emits an auth.lost event.
func (p *Publisher) AuthLost() error {
	return p.publish(TypeAuthLost)
}

func (p *Publisher) publish(eventType string) error {
	env := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Service:   p.service,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("events", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{eventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		p.logger.Error("events.publish_failed",
			zap.String("subject", p.subject),
			zap.String("event_type", eventType),
			zap.Error(err))
		metrics.IncNATSMessage(p.subject, "error")
		return err
	}

	p.logger.Info("events.publish_success",
		zap.String("subject", p.subject),
		zap.String("event_type", eventType))
	metrics.IncNATSMessage(p.subject, "ok")
	return nil
}

// Close drains the underlying NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
