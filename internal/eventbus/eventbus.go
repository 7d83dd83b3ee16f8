package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// MetadataTopic names the metadata key handlers use to route produced messages.
const MetadataTopic = "topic"

// ErrMissingTopic is returned when a message published without an explicit
// topic carries no topic metadata either.
var ErrMissingTopic = errors.New("message has no topic metadata")

// EventBus publishes and subscribes to ledger events.
type EventBus interface {
	message.Publisher
	message.Subscriber
}

// StreamConfig describes the JetStream stream backing the ledger topics.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// InboxPrefix marks core NATS reply subjects. Messages routed to one bypass
// JetStream, which has no stream for them.
const InboxPrefix = "_INBOX."

// DefaultStream captures every highscore.* subject.
var DefaultStream = StreamConfig{
	Name:     "HIGHSCORE",
	Subjects: []string{"highscore.>"},
	MaxAge:   72 * time.Hour,
}

type eventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	natsConn   *nc.Conn
	marshaler  wmnats.Marshaler
	logger     *slog.Logger
	// shared is set when publisher and subscriber are the same pub/sub.
	shared bool
}

// NewNATSEventBus connects to NATS JetStream, provisions the ledger stream and
// returns a watermill-backed EventBus.
func NewNATSEventBus(ctx context.Context, natsURL, durablePrefix string, stream StreamConfig, logger *slog.Logger) (EventBus, error) {
	natsConn, err := nc.Connect(natsURL,
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(time.Second),
		nc.ErrorHandler(func(_ *nc.Conn, sub *nc.Subscription, err error) {
			if sub != nil {
				logger.Error("NATS subscription error", slog.String("subject", sub.Subject), slog.Any("error", err))
				return
			}
			logger.Error("NATS connection error", slog.Any("error", err))
		}),
	)
	if err != nil {
		logger.Error("Failed to connect to NATS", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	if err := ensureStream(ctx, js, stream, logger); err != nil {
		natsConn.Close()
		return nil, err
	}

	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := &wmnats.NATSMarshaler{}

	publisher, err := wmnats.NewPublisher(
		wmnats.PublisherConfig{
			URL:       natsURL,
			Marshaler: marshaler,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
			JetStream: wmnats.JetStreamConfig{
				AutoProvision: false,
				TrackMsgId:    true,
			},
		},
		wmLogger,
	)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	subscriber, err := wmnats.NewSubscriber(
		wmnats.SubscriberConfig{
			URL:              natsURL,
			QueueGroupPrefix: durablePrefix,
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     10 * time.Second,
			Unmarshaler:      marshaler,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
			JetStream: wmnats.JetStreamConfig{
				AutoProvision: false,
				DurablePrefix: durablePrefix,
				SubscribeOptions: []nc.SubOpt{
					nc.DeliverNew(),
					nc.AckExplicit(),
				},
			},
		},
		wmLogger,
	)
	if err != nil {
		_ = publisher.Close()
		natsConn.Close()
		return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}

	logger.InfoContext(ctx, "NATS event bus ready",
		slog.String("url", natsURL),
		slog.String("stream", stream.Name),
	)

	return &eventBus{
		publisher:  publisher,
		subscriber: subscriber,
		natsConn:   natsConn,
		marshaler:  marshaler,
		logger:     logger,
	}, nil
}

// NewInMemoryEventBus returns an EventBus backed by a watermill GoChannel.
func NewInMemoryEventBus(logger *slog.Logger) EventBus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewSlogLogger(logger))

	return &eventBus{
		publisher:  ch,
		subscriber: ch,
		logger:     logger,
		shared:     true,
	}
}

// Publish sends msgs to topic. An empty topic routes each message by its
// topic metadata, which is how router handlers fan results out.
func (eb *eventBus) Publish(topic string, msgs ...*message.Message) error {
	if topic != "" {
		return eb.publisher.Publish(topic, msgs...)
	}

	for _, msg := range msgs {
		target := msg.Metadata.Get(MetadataTopic)
		if target == "" {
			return fmt.Errorf("%w: uuid=%s", ErrMissingTopic, msg.UUID)
		}
		if eb.natsConn != nil && strings.HasPrefix(target, InboxPrefix) {
			if err := eb.reply(target, msg); err != nil {
				return err
			}
			continue
		}
		if err := eb.publisher.Publish(target, msg); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", target, err)
		}
		eb.logger.Debug("Message published",
			slog.String("topic", target),
			slog.String("message_id", msg.UUID),
		)
	}
	return nil
}

func (eb *eventBus) reply(subject string, msg *message.Message) error {
	natsMsg, err := eb.marshaler.Marshal(subject, msg)
	if err != nil {
		return fmt.Errorf("failed to marshal reply %s: %w", msg.UUID, err)
	}
	if err := eb.natsConn.PublishMsg(natsMsg); err != nil {
		return fmt.Errorf("failed to publish reply to %s: %w", subject, err)
	}
	return nil
}

func (eb *eventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return msgs, nil
}

// Close releases the publisher, subscriber and NATS connection.
func (eb *eventBus) Close() error {
	var errs []error
	if err := eb.publisher.Close(); err != nil {
		eb.logger.Error("Error closing publisher", slog.Any("error", err))
		errs = append(errs, err)
	}
	if !eb.shared {
		if err := eb.subscriber.Close(); err != nil {
			eb.logger.Error("Error closing subscriber", slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	if eb.natsConn != nil {
		eb.natsConn.Close()
	}
	return errors.Join(errs...)
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig, logger *slog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    cfg.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to provision stream %s: %w", cfg.Name, err)
	}
	logger.InfoContext(ctx, "JetStream stream provisioned",
		slog.String("stream", cfg.Name),
		slog.Any("subjects", cfg.Subjects),
	)
	return nil
}
