package highscoreservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/attr"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/metrics"
	"github.com/Black-And-White-Club/highscore-ledger/internal/results"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "HighscoreService"

// HighscoreService implements the Service interface.
type HighscoreService struct {
	repo     highscoredb.Repository
	logger   *slog.Logger
	metrics  metrics.HighscoreMetrics
	tracer   trace.Tracer
	db       *bun.DB
	ledgerID string
	now      func() time.Time
}

// NewHighscoreService creates a new HighscoreService for ledgerID.
func NewHighscoreService(
	repo highscoredb.Repository,
	logger *slog.Logger,
	metrics metrics.HighscoreMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	ledgerID string,
) *HighscoreService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HighscoreService{
		repo:     repo,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		db:       db,
		ledgerID: ledgerID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddressOf returns the record address of player on this ledger.
func (s *HighscoreService) AddressOf(player identity.Identity) identity.Address {
	return identity.DeriveAddress(s.ledgerID, player)
}

func toView(rec *highscoredb.ScoreRecord) (ScoreRecordView, error) {
	addr, err := identity.ParseAddress(rec.Address)
	if err != nil {
		return ScoreRecordView{}, fmt.Errorf("corrupt record address: %w", err)
	}
	owner, err := identity.ParseIdentity(rec.Owner)
	if err != nil {
		return ScoreRecordView{}, fmt.Errorf("corrupt record owner %q: %w", rec.Owner, err)
	}
	return ScoreRecordView{
		Address:   addr,
		Owner:     owner,
		Score:     rec.Score,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// unwrap converts an operation result into the (value, error) pair returned
// by the public methods.
func unwrap[S any](result results.OperationResult[S, error], err error) (S, error) {
	var zero S
	if err != nil {
		return zero, err
	}
	if result.IsFailure() {
		return zero, *result.Failure
	}
	if !result.IsSuccess() {
		return zero, fmt.Errorf("operation returned an empty result")
	}
	return *result.Success, nil
}

// -----------------------------------------------------------------------------
// Generic Helpers (Defined as functions because methods cannot have type params)
// -----------------------------------------------------------------------------

// operationFunc is the generic signature for service operation functions.
type operationFunc[S any, F any] func(ctx context.Context) (results.OperationResult[S, F], error)

// withTelemetry wraps a service operation with tracing, metrics, and panic recovery.
func withTelemetry[S any, F any](
	s *HighscoreService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[S, F],
) (result results.OperationResult[S, F], err error) {

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
			attribute.String("ledger_id", s.ledgerID),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	if s.metrics != nil {
		s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)
	}

	startTime := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
		}
	}()

	s.logger.InfoContext(ctx, "Operation triggered", attr.ExtractCorrelationID(ctx), attr.String("operation", operationName))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			if s.metrics != nil {
				s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			}
			span.RecordError(err)
			result = results.OperationResult[S, F]{}
		}
	}()

	result, err = op(ctx)

	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Error(wrappedErr),
		)
		if s.metrics != nil {
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		}
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Any("failure_payload", *result.Failure),
		)
	}

	if result.IsSuccess() {
		s.logger.InfoContext(ctx, "Operation completed successfully",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	}

	return result, nil
}

// runInTx ensures the operation runs within a transaction.
// Domain failures commit; only infrastructure errors roll back.
func runInTx[S any, F any](
	s *HighscoreService,
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (results.OperationResult[S, F], error),
) (results.OperationResult[S, F], error) {

	if s.db == nil {
		return fn(ctx, nil)
	}

	var result results.OperationResult[S, F]

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})

	return result, err
}
