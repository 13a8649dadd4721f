package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher publishes events as JSON on applications.<id>.status.
type NATSPublisher struct {
	Conn   natsConn
	Prefix string
}

// DialNATS connects to url and returns a publisher plus a close func.
func DialNATS(url string) (*NATSPublisher, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("resume-pipeline"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	closer := func() {
		_ = nc.Drain()
	}
	return &NATSPublisher{Conn: nc, Prefix: "applications"}, closer, nil
}

// Subject returns the subject events for applicationID are published on.
func (p *NATSPublisher) Subject(applicationID string) string {
	prefix := p.Prefix
	if prefix == "" {
		prefix = "applications"
	}
	return prefix + "." + applicationID + ".status"
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := p.Conn.Publish(p.Subject(e.ApplicationID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}
