package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stan "github.com/nats-io/stan.go"
)

// StanConfig locates a NATS Streaming cluster.
type StanConfig struct {
	ClusterID string
	ClientID  string
	URL       string
	Subject   string
}

// stanConn is the part of stan.Conn the publisher uses.
type stanConn interface {
	Publish(subject string, data []byte) error
	Close() error
}

// StanPublisher publishes Synced events as JSON to one subject.
type StanPublisher struct {
	conn    stanConn
	subject string
}

// ConnectStan opens a streaming connection. An empty ClientID gets a
// time-based one so concurrent CLI invocations do not collide.
func ConnectStan(cfg StanConfig) (*StanPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("ledgersync-%d", time.Now().UnixNano())
	}
	sc, err := stan.Connect(cfg.ClusterID, clientID, stan.NatsURL(cfg.URL), stan.ConnectWait(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("stan connect: %w", err)
	}
	return &StanPublisher{conn: sc, subject: cfg.Subject}, nil
}

// Publish blocks until the streaming server acknowledges the message.
// The stan client has no context support; ctx is checked before sending.
func (p *StanPublisher) Publish(ctx context.Context, e Synced) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

func (p *StanPublisher) Close() error {
	return p.conn.Close()
}

var _ Publisher = (*StanPublisher)(nil)
