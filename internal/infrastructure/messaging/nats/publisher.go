package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// Subjects carried on the bus. Alert transitions fan out per transition type
// so consumers can subscribe to just what they handle.
const (
	subjectAlertPrefix = "research.alerts."
	subjectRunSummary  = "research.runs.summary"
)

// NATSPublisher implements port.EventPublisher over NATS JetStream.
type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// NewNATSPublisher connects with reconnect handling and a JetStream context.
func NewNATSPublisher(natsURL string, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	log.Info("Connected to NATS", "url", natsURL)
	return &NATSPublisher{nc: nc, js: js, logger: log}, nil
}

// PublishAlertTransition emits one alert lifecycle event under
// research.alerts.<transition>.
func (p *NATSPublisher) PublishAlertTransition(ctx context.Context, transition port.AlertTransitionEvent) error {
	return p.publish(subjectAlertPrefix+transition.Transition, transition)
}

// PublishRunSummary emits the outcome of one collection run.
func (p *NATSPublisher) PublishRunSummary(ctx context.Context, summary port.RunSummaryEvent) error {
	return p.publish(subjectRunSummary, summary)
}

func (p *NATSPublisher) publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Async publish; delivery confirmation is not worth blocking the run.
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.logger.Error("Failed to publish event", err, "subject", subject)
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("Event published", "subject", subject, "size", len(data))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.logger.Info("Closing NATS connection")
		p.nc.Close()
	}
	return nil
}
