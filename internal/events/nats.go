package events

import (
	"context"
	"fmt"

	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSBus publishes and receives mutation events over core NATS.
// Subjects are "<prefix>.<resource>"; subscribers listen on "<prefix>.>".
type NATSBus struct {
	nc     *nats.Conn
	config *Config
}

// NewNATSBus connects to NATS
func NewNATSBus(config *Config) (*NATSBus, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	log := telemetry.WithFields(logrus.Fields{"component": "events"})
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	}

	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{nc: nc, config: config}, nil
}

func (b *NATSBus) subject(resource string) string {
	if resource == "" {
		resource = "unknown"
	}
	return b.config.SubjectPrefix + "." + resource
}

// Publish sends the event and flushes so it is on the wire when Publish
// returns
func (b *NATSBus) Publish(ctx context.Context, event *MutationEvent) error {
	if event.Source == "" {
		event.Source = b.config.Source
	}
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal mutation event: %w", err)
	}

	msg := nats.NewMsg(b.subject(event.Resource))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)

	if err := b.nc.PublishMsg(msg); err != nil {
		telemetry.RecordMutationEvent("out", "error")
		return fmt.Errorf("failed to publish mutation event: %w", err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		telemetry.RecordMutationEvent("out", "error")
		return fmt.Errorf("failed to flush mutation event: %w", err)
	}
	telemetry.RecordMutationEvent("out", "ok")
	return nil
}

// Subscribe delivers every mutation event. Malformed messages are logged
// and skipped.
func (b *NATSBus) Subscribe(handler Handler) (func() error, error) {
	sub, err := b.nc.Subscribe(b.config.SubjectPrefix+".>", func(msg *nats.Msg) {
		event, err := UnmarshalMutationEvent(msg.Data)
		if err != nil {
			telemetry.RecordMutationEvent("in", "malformed")
			telemetry.WithError(err).WithField("subject", msg.Subject).Warn("Dropping malformed mutation event")
			return
		}
		telemetry.RecordMutationEvent("in", "ok")
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub.Unsubscribe, nil
}

// Healthy reports whether the connection is up
func (b *NATSBus) Healthy() bool {
	return b.nc.IsConnected()
}

// Close drains subscriptions and closes the connection
func (b *NATSBus) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
