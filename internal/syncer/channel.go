package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	natsMaxReconnects = -1 // keep reconnecting; the channel is store-and-forward
	natsReconnectWait = 2 * time.Second

	consumerMaxDeliver    = 5
	consumerAckWait       = 30 * time.Second
	consumerMaxAckPending = 256
)

// ChannelConfig configures the NATS-backed messaging channel.
type ChannelConfig struct {
	URL    string
	Stream string
}

func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		URL:    nats.DefaultURL,
		Stream: StreamName,
	}
}

// Channel is the asynchronous store-and-forward channel between the
// wearable and the companion. JetStream gives at-least-once delivery
// and retains messages while a device is out of range.
type Channel struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg ChannelConfig
}

// Connect dials NATS, sets up JetStream and makes sure the stream
// exists.
func Connect(ctx context.Context, cfg ChannelConfig) (*Channel, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("messaging channel disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("messaging channel reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("messaging channel error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Channel{nc: nc, js: js, cfg: cfg}
	if err := c.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Channel) ensureStream(ctx context.Context) error {
	_, err := c.js.Stream(ctx, c.cfg.Stream)
	if err == nil {
		log.Info().Str("stream", c.cfg.Stream).Msg("using existing stream")
		return nil
	}

	_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        c.cfg.Stream,
		Description: "RefWatch device synchronization channel",
		Subjects:    []string{StreamSubjects},
		Storage:     jetstream.FileStorage,
		// Snapshots supersede each other; a day of retention is ample
		// for a device that was out of range during a match.
		MaxAge: 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	log.Info().Str("stream", c.cfg.Stream).Msg("created stream")
	return nil
}

// Publish writes a payload to a subject with JetStream persistence.
func (c *Channel) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Consume attaches a durable consumer for the given subjects. The
// handler decides the ack: a nil return acks, an error naks for
// redelivery. Consumption continues until ctx is done or the returned
// ConsumeContext is stopped.
func (c *Channel) Consume(ctx context.Context, durable string, subjects []string, deliver jetstream.DeliverPolicy, handler func(subject string, data []byte) error) (jetstream.ConsumeContext, error) {
	stream, err := c.js.Stream(ctx, c.cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:           durable,
		Durable:        durable,
		FilterSubjects: subjects,
		DeliverPolicy:  deliver,
		AckPolicy:      jetstream.AckExplicitPolicy,
		MaxDeliver:     consumerMaxDeliver,
		AckWait:        consumerAckWait,
		MaxAckPending:  consumerMaxAckPending,
		ReplayPolicy:   jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, durable)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("create consumer %s: %w", durable, err)
		}
		log.Info().Str("consumer", durable).Msg("created durable consumer")
	} else {
		log.Info().Str("consumer", durable).Msg("using existing durable consumer")
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Subject(), msg.Data()); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to handle message")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer %s: %w", durable, err)
	}
	return cc, nil
}

// Close drains the underlying connection.
func (c *Channel) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
