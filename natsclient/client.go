// Package natsclient wraps a NATS connection and its JetStream context —
// the bus transport the subject router is built on. Adapted from the
// teacher's packages/go-core/natsclient, with the teacher's single
// DOMAIN_EVENTS stream replaced by the ALCHEMIST stream (see
// ProvisionStreams).
package natsclient

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS and initializes a JetStream context.
// RetryOnFailedConnect/MaxReconnects(-1) keep dialing indefinitely so a
// core process started before the bus is reachable still comes up.
func NewClient(url string, logger *zap.Logger, opts ...nats.Option) (*Client, error) {
	allOpts := append([]nats.Option{nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1)}, opts...)
	nc, err := nats.Connect(url, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("natsclient: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natsclient: init jetstream: %w", err)
	}

	logger.Info("nats jetstream connected", zap.String("url", url))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains the connection — flushing pending JetStream publish acks
// and outstanding subscription deliveries — before closing, falling back
// to an immediate Close if Drain itself errors (e.g. already disconnected).
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}
