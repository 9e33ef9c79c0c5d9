package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "ide.terminal"

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	conn, err := nats.Connect(url,
		nats.Name("ide-terminal"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}, nil
}

// Subject returns the subject an event kind is published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	return subject(p.prefix, kind)
}

func subject(prefix string, kind Kind) string {
	return prefix + "." + string(kind)
}

// Publish sends the event. The NATS client buffers while reconnecting.
func (p *NATSPublisher) Publish(e Event) error {
	data, err := sonic.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	if err := p.conn.Publish(p.Subject(e.Kind), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Kind, err)
	}
	return nil
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// NewPublisher returns a NATS publisher when url is set and a Nop otherwise.
func NewPublisher(url, prefix string, logger *zap.Logger) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	p, err := Connect(url, prefix, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
