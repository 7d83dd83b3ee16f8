package highscoreservice

import (
	"context"
	"errors"
	"fmt"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/attr"
	"github.com/Black-And-White-Club/highscore-ledger/internal/results"
	"github.com/uptrace/bun"
)

// SubmitScore offers candidate as player's new high score.
func (s *HighscoreService) SubmitScore(ctx context.Context, caller, player identity.Identity, candidate uint32) (*SubmitResult, error) {
	submitTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[*SubmitResult, error], error) {
		return s.submitScoreLogic(ctx, db, caller, player, candidate)
	}

	result, err := withTelemetry(s, ctx, "SubmitScore", player.String(), func(ctx context.Context) (results.OperationResult[*SubmitResult, error], error) {
		return runInTx(s, ctx, submitTx)
	})
	return unwrap(result, err)
}

// submitScoreLogic holds the row lock from read to write so concurrent
// submissions to one record serialize.
func (s *HighscoreService) submitScoreLogic(ctx context.Context, db bun.IDB, caller, player identity.Identity, candidate uint32) (results.OperationResult[*SubmitResult, error], error) {
	if caller.IsZero() || player.IsZero() {
		return results.FailureResult[*SubmitResult, error](ErrInvalidIdentity), nil
	}

	address := s.AddressOf(player).String()

	rec, err := s.repo.GetForUpdate(ctx, db, address)
	if err != nil {
		if errors.Is(err, highscoredb.ErrNotFound) {
			return results.FailureResult[*SubmitResult, error](ErrNotFound), nil
		}
		return results.OperationResult[*SubmitResult, error]{}, fmt.Errorf("failed to load record: %w", err)
	}

	if rec.Owner != caller.String() {
		s.logger.WarnContext(ctx, "Rejected submission from non-owner",
			attr.ExtractCorrelationID(ctx),
			attr.Player("caller", caller),
			attr.String("owner", rec.Owner),
		)
		return results.FailureResult[*SubmitResult, error](ErrUnauthorized), nil
	}

	previous := rec.Score
	raised := candidate > previous

	if raised {
		now := s.now()
		if err := s.repo.UpdateScore(ctx, db, address, candidate, now); err != nil {
			return results.OperationResult[*SubmitResult, error]{}, fmt.Errorf("failed to raise score: %w", err)
		}
		if err := s.repo.InsertRaise(ctx, db, &highscoredb.ScoreRaise{
			Address:       address,
			PreviousScore: previous,
			NewScore:      candidate,
			RaisedAt:      now,
		}); err != nil {
			return results.OperationResult[*SubmitResult, error]{}, fmt.Errorf("failed to record raise: %w", err)
		}
		rec.Score = candidate
		rec.UpdatedAt = now
	}

	view, err := toView(rec)
	if err != nil {
		return results.OperationResult[*SubmitResult, error]{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordScoreSubmission(ctx, raised)
	}

	return results.SuccessResult[*SubmitResult, error](&SubmitResult{
		Record:   view,
		Previous: previous,
		Raised:   raised,
	}), nil
}
