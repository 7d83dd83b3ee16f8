package highscoreservice

import (
	"context"
	"errors"
	"fmt"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/results"
	"github.com/uptrace/bun"
)

// CreateRecord allocates the caller's record at its derived address.
func (s *HighscoreService) CreateRecord(ctx context.Context, caller identity.Identity) (*ScoreRecordView, error) {
	createTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[*ScoreRecordView, error], error) {
		return s.createRecordLogic(ctx, db, caller)
	}

	result, err := withTelemetry(s, ctx, "CreateRecord", caller.String(), func(ctx context.Context) (results.OperationResult[*ScoreRecordView, error], error) {
		return runInTx(s, ctx, createTx)
	})
	return unwrap(result, err)
}

func (s *HighscoreService) createRecordLogic(ctx context.Context, db bun.IDB, caller identity.Identity) (results.OperationResult[*ScoreRecordView, error], error) {
	if caller.IsZero() {
		return results.FailureResult[*ScoreRecordView, error](ErrInvalidIdentity), nil
	}

	now := s.now()
	rec := &highscoredb.ScoreRecord{
		Address:   s.AddressOf(caller).String(),
		LedgerID:  s.ledgerID,
		Owner:     caller.String(),
		Score:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, db, rec); err != nil {
		if errors.Is(err, highscoredb.ErrAlreadyExists) {
			return results.FailureResult[*ScoreRecordView, error](ErrAlreadyExists), nil
		}
		return results.OperationResult[*ScoreRecordView, error]{}, fmt.Errorf("failed to create record: %w", err)
	}

	view, err := toView(rec)
	if err != nil {
		return results.OperationResult[*ScoreRecordView, error]{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordRecordCreated(ctx)
	}
	return results.SuccessResult[*ScoreRecordView, error](&view), nil
}
