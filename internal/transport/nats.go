package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/metrics"
)

// NATSConfig holds the event subscription and alert publishing settings.
type NATSConfig struct {
	URL          string
	Subject      string
	AlertSubject string
	Name         string
}

// NATSClient subscribes to normalized events and publishes alerts.
type NATSClient struct {
	cfg  NATSConfig
	conn *nats.Conn
	sub  *nats.Subscription
	log  *logging.Logger
}

// NewNATSClient connects to the configured NATS server.
func NewNATSClient(cfg NATSConfig, log *logging.Logger) (*NATSClient, error) {
	if cfg.Name == "" {
		cfg.Name = "abusehawk"
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSClient{cfg: cfg, conn: conn, log: log}, nil
}

// Subscribe delivers parsed events from the event subject to out. Malformed
// messages are counted and dropped. The channel is not closed by the
// subscription; cancel via Close.
func (c *NATSClient) Subscribe(out chan<- event.Event) error {
	sub, err := c.conn.Subscribe(c.cfg.Subject, func(msg *nats.Msg) {
		e, err := event.Parse(msg.Data)
		if err != nil {
			metrics.EventsMalformed.Inc()
			c.log.Debug("skipping malformed event message", logging.Error(err))
			return
		}
		out <- e
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub
	return nil
}

// Emit publishes one alert to the alert subject, satisfying pipeline.Sink.
func (c *NATSClient) Emit(ctx context.Context, a *alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := c.conn.Publish(c.cfg.AlertSubject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close drains the subscription and closes the connection.
func (c *NATSClient) Close() error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}
