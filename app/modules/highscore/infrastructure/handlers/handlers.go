package highscorehandlers

import (
	"context"
	"errors"
	"log/slog"

	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	highscoreevents "github.com/Black-And-White-Club/highscore-ledger/internal/events/highscore"
	"github.com/Black-And-White-Club/highscore-ledger/internal/handlerwrapper"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/attr"
	"go.opentelemetry.io/otel/trace"
)

// HighscoreHandlers implements the Handlers interface.
type HighscoreHandlers struct {
	service  highscoreservice.Service
	verifier TokenVerifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHighscoreHandlers creates a new HighscoreHandlers instance.
func NewHighscoreHandlers(
	service highscoreservice.Service,
	verifier TokenVerifier,
	logger *slog.Logger,
	tracer trace.Tracer,
) Handlers {
	return &HighscoreHandlers{
		service:  service,
		verifier: verifier,
		logger:   logger,
		tracer:   tracer,
	}
}

// HandleRecordCreateRequested handles record allocation requests.
func (h *HighscoreHandlers) HandleRecordCreateRequested(ctx context.Context, payload *highscoreevents.RecordCreateRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	ctx, span := h.tracer.Start(ctx, "HighscoreHandlers.HandleRecordCreateRequested")
	defer span.End()

	caller, err := h.verifier.Verify(payload.Token)
	if err != nil {
		h.logger.WarnContext(ctx, "Rejected record creation with bad token",
			attr.ExtractCorrelationID(ctx),
			attr.Error(err),
		)
		return []handlerwrapper.Result{{
			Topic: highscoreevents.RecordCreateFailedV1,
			Payload: &highscoreevents.RecordCreateFailedPayloadV1{
				Code:   highscoreevents.CodeUnauthenticated,
				Reason: err.Error(),
			},
		}}, nil
	}

	view, err := h.service.CreateRecord(ctx, caller)
	if err != nil {
		code, ok := failureCode(err)
		if !ok {
			return nil, err
		}
		return []handlerwrapper.Result{{
			Topic: highscoreevents.RecordCreateFailedV1,
			Payload: &highscoreevents.RecordCreateFailedPayloadV1{
				Player: caller,
				Code:   code,
				Reason: err.Error(),
			},
		}}, nil
	}

	h.logger.InfoContext(ctx, "Record created",
		attr.ExtractCorrelationID(ctx),
		attr.Player("player", caller),
		attr.String("address", view.Address.String()),
	)

	return []handlerwrapper.Result{{
		Topic:   highscoreevents.RecordCreatedV1,
		Payload: &highscoreevents.RecordCreatedPayloadV1{Record: toRecordV1(view)},
	}}, nil
}

// HandleScoreSubmitRequested handles score submissions.
func (h *HighscoreHandlers) HandleScoreSubmitRequested(ctx context.Context, payload *highscoreevents.ScoreSubmitRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	ctx, span := h.tracer.Start(ctx, "HighscoreHandlers.HandleScoreSubmitRequested")
	defer span.End()

	fail := func(code highscoreevents.FailureCode, reason string) []handlerwrapper.Result {
		return []handlerwrapper.Result{{
			Topic: highscoreevents.ScoreSubmitFailedV1,
			Payload: &highscoreevents.ScoreSubmitFailedPayloadV1{
				Player: payload.Player,
				Score:  payload.Score,
				Code:   code,
				Reason: reason,
			},
		}}
	}

	caller, err := h.verifier.Verify(payload.Token)
	if err != nil {
		h.logger.WarnContext(ctx, "Rejected score submission with bad token",
			attr.ExtractCorrelationID(ctx),
			attr.Player("player", payload.Player),
			attr.Error(err),
		)
		return fail(highscoreevents.CodeUnauthenticated, err.Error()), nil
	}

	res, err := h.service.SubmitScore(ctx, caller, payload.Player, payload.Score)
	if err != nil {
		code, ok := failureCode(err)
		if !ok {
			return nil, err
		}
		return fail(code, err.Error()), nil
	}

	return []handlerwrapper.Result{{
		Topic: highscoreevents.ScoreSubmittedV1,
		Payload: &highscoreevents.ScoreSubmittedPayloadV1{
			Record:   toRecordV1(&res.Record),
			Previous: res.Previous,
			Raised:   res.Raised,
		},
	}}, nil
}

// HandleRecordRetrieveRequested answers record lookups, replying on the
// request's reply subject when one is set.
func (h *HighscoreHandlers) HandleRecordRetrieveRequested(ctx context.Context, payload *highscoreevents.RecordRetrieveRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	ctx, span := h.tracer.Start(ctx, "HighscoreHandlers.HandleRecordRetrieveRequested")
	defer span.End()

	successTopic := highscoreevents.RecordRetrievedV1
	failureTopic := highscoreevents.RecordRetrieveFailedV1
	if rt := handlerwrapper.ReplyTo(ctx); rt != "" {
		successTopic, failureTopic = rt, rt
	}

	view, err := h.service.GetRecord(ctx, payload.Player)
	if err != nil {
		code, ok := failureCode(err)
		if !ok {
			return nil, err
		}
		return []handlerwrapper.Result{{
			Topic: failureTopic,
			Payload: &highscoreevents.RecordRetrieveFailedPayloadV1{
				Player: payload.Player,
				Code:   code,
				Reason: err.Error(),
			},
		}}, nil
	}

	return []handlerwrapper.Result{{
		Topic:   successTopic,
		Payload: &highscoreevents.RecordRetrievedPayloadV1{Record: toRecordV1(view)},
	}}, nil
}

// RejectUndecodable returns the failure event published when a request on
// requestTopic cannot be decoded. It returns nil for unknown topics.
func RejectUndecodable(requestTopic string) handlerwrapper.DecodeFailureFunc {
	return func(ctx context.Context, err error) []handlerwrapper.Result {
		code, reason := highscoreevents.CodeInvalidPayload, err.Error()

		switch requestTopic {
		case highscoreevents.RecordCreateRequestedV1:
			return []handlerwrapper.Result{{
				Topic:   highscoreevents.RecordCreateFailedV1,
				Payload: &highscoreevents.RecordCreateFailedPayloadV1{Code: code, Reason: reason},
			}}
		case highscoreevents.ScoreSubmitRequestedV1:
			return []handlerwrapper.Result{{
				Topic:   highscoreevents.ScoreSubmitFailedV1,
				Payload: &highscoreevents.ScoreSubmitFailedPayloadV1{Code: code, Reason: reason},
			}}
		case highscoreevents.RecordRetrieveRequestedV1:
			topic := highscoreevents.RecordRetrieveFailedV1
			if rt := handlerwrapper.ReplyTo(ctx); rt != "" {
				topic = rt
			}
			return []handlerwrapper.Result{{
				Topic:   topic,
				Payload: &highscoreevents.RecordRetrieveFailedPayloadV1{Code: code, Reason: reason},
			}}
		}
		return nil
	}
}

// failureCode maps a domain error to its wire code. ok is false for
// infrastructure errors.
func failureCode(err error) (code highscoreevents.FailureCode, ok bool) {
	switch {
	case errors.Is(err, highscoreservice.ErrAlreadyExists):
		return highscoreevents.CodeAlreadyExists, true
	case errors.Is(err, highscoreservice.ErrNotFound):
		return highscoreevents.CodeNotFound, true
	case errors.Is(err, highscoreservice.ErrUnauthorized):
		return highscoreevents.CodeUnauthorized, true
	case errors.Is(err, identity.ErrInvalidIdentity):
		return highscoreevents.CodeInvalidIdentity, true
	case errors.Is(err, identity.ErrUnauthenticated):
		return highscoreevents.CodeUnauthenticated, true
	}
	return "", false
}

func toRecordV1(v *highscoreservice.ScoreRecordView) highscoreevents.RecordV1 {
	return highscoreevents.RecordV1{
		Address:   v.Address,
		Owner:     v.Owner,
		Score:     v.Score,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}
