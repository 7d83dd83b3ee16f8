// Package handlerwrapper adapts typed event handlers to watermill handler funcs.
package handlerwrapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Black-And-White-Club/highscore-ledger/internal/eventbus"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/attr"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

// CtxKeyReplyTo holds the reply subject of a request/reply message.
const CtxKeyReplyTo ctxKey = "reply_to"

// MetadataReplyTo is the message metadata key carrying a reply subject.
const MetadataReplyTo = "reply_to"

// Result is a message a handler wants published.
type Result struct {
	Topic    string
	Payload  any
	Metadata map[string]string
}

// ReplyTo returns the reply subject stored on ctx, if any.
func ReplyTo(ctx context.Context) string {
	rt, _ := ctx.Value(CtxKeyReplyTo).(string)
	return rt
}

// DecodeFailureFunc builds the messages published when a payload cannot be
// decoded.
type DecodeFailureFunc func(ctx context.Context, err error) []Result

// Option configures WrapTransformingTyped.
type Option func(*wrapOptions)

type wrapOptions struct {
	onDecodeFailure DecodeFailureFunc
}

// WithDecodeFailure publishes the results of fn instead of only logging an
// undecodable payload. The message is still acked.
func WithDecodeFailure(fn DecodeFailureFunc) Option {
	return func(o *wrapOptions) {
		o.onDecodeFailure = fn
	}
}

// WrapTransformingTyped decodes the message payload into T, calls handler and
// turns its results into outgoing messages routed by topic metadata.
//
// Undecodable payloads are acked; redelivery cannot fix them. Handler errors
// are returned so the router's retry middleware can redeliver. Only inbox
// reply subjects are honoured, so a request cannot direct a reply onto an
// ordinary topic.
func WrapTransformingTyped[T any](
	handlerName string,
	logger *slog.Logger,
	tracer trace.Tracer,
	handler func(context.Context, *T) ([]Result, error),
	opts ...Option,
) message.HandlerFunc {
	var o wrapOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := middleware.MessageCorrelationID(msg)

		ctx := attr.WithCorrelationID(msg.Context(), correlationID)
		if rt := msg.Metadata.Get(MetadataReplyTo); rt != "" {
			if strings.HasPrefix(rt, eventbus.InboxPrefix) {
				ctx = context.WithValue(ctx, CtxKeyReplyTo, rt)
			} else {
				logger.WarnContext(ctx, "Ignoring non-inbox reply subject",
					attr.String("handler", handlerName),
					attr.String("reply_to", rt),
					attr.ExtractCorrelationID(ctx),
				)
			}
		}

		ctx, span := tracer.Start(ctx, handlerName,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("correlation_id", correlationID),
			),
		)
		defer span.End()

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			logger.ErrorContext(ctx, "Dropping undecodable message",
				attr.String("handler", handlerName),
				attr.String("message_id", msg.UUID),
				attr.ExtractCorrelationID(ctx),
				attr.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "undecodable payload")
			if o.onDecodeFailure == nil {
				return nil, nil
			}
			return encodeResults(o.onDecodeFailure(ctx, err), correlationID, span)
		}

		results, err := handler(ctx, payload)
		if err != nil {
			logger.ErrorContext(ctx, "Handler failed",
				attr.String("handler", handlerName),
				attr.String("message_id", msg.UUID),
				attr.ExtractCorrelationID(ctx),
				attr.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		return encodeResults(results, correlationID, span)
	}
}

func encodeResults(results []Result, correlationID string, span trace.Span) ([]*message.Message, error) {
	out := make([]*message.Message, 0, len(results))
	for _, r := range results {
		m, err := NewMessage(r, correlationID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, m)
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// NewMessage encodes r as a JSON watermill message carrying the correlation ID.
func NewMessage(r Result, correlationID string) (*message.Message, error) {
	if r.Topic == "" {
		return nil, eventbus.ErrMissingTopic
	}

	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", r.Topic, err)
	}

	m := message.NewMessage(watermill.NewUUID(), body)
	for k, v := range r.Metadata {
		m.Metadata.Set(k, v)
	}
	m.Metadata.Set(eventbus.MetadataTopic, r.Topic)
	if correlationID != "" {
		middleware.SetCorrelationID(correlationID, m)
	}
	return m, nil
}
