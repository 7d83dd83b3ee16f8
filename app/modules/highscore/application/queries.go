package highscoreservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/results"
	"github.com/uptrace/bun"
)

const (
	MinLeaderboardLimit = 1
	MaxLeaderboardLimit = 100
)

// GetRecord returns player's record.
func (s *HighscoreService) GetRecord(ctx context.Context, player identity.Identity) (*ScoreRecordView, error) {
	getTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[*ScoreRecordView, error], error) {
		if player.IsZero() {
			return results.FailureResult[*ScoreRecordView, error](ErrInvalidIdentity), nil
		}
		rec, err := s.repo.GetByAddress(ctx, db, s.AddressOf(player).String())
		if err != nil {
			if errors.Is(err, highscoredb.ErrNotFound) {
				return results.FailureResult[*ScoreRecordView, error](ErrNotFound), nil
			}
			return results.OperationResult[*ScoreRecordView, error]{}, fmt.Errorf("failed to get record: %w", err)
		}
		view, err := toView(rec)
		if err != nil {
			return results.OperationResult[*ScoreRecordView, error]{}, err
		}
		return results.SuccessResult[*ScoreRecordView, error](&view), nil
	}

	result, err := withTelemetry(s, ctx, "GetRecord", player.String(), func(ctx context.Context) (results.OperationResult[*ScoreRecordView, error], error) {
		return runInTx(s, ctx, getTx)
	})
	return unwrap(result, err)
}

// ListTopRecords returns the best records of the ledger. limit is clamped
// to [MinLeaderboardLimit, MaxLeaderboardLimit].
func (s *HighscoreService) ListTopRecords(ctx context.Context, limit int) ([]ScoreRecordView, error) {
	limit = clampLimit(limit)

	listTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[[]ScoreRecordView, error], error) {
		recs, err := s.repo.ListTop(ctx, db, s.ledgerID, limit)
		if err != nil {
			return results.OperationResult[[]ScoreRecordView, error]{}, fmt.Errorf("failed to list records: %w", err)
		}
		views := make([]ScoreRecordView, 0, len(recs))
		for i := range recs {
			view, err := toView(&recs[i])
			if err != nil {
				return results.OperationResult[[]ScoreRecordView, error]{}, err
			}
			views = append(views, view)
		}
		return results.SuccessResult[[]ScoreRecordView, error](views), nil
	}

	result, err := withTelemetry(s, ctx, "ListTopRecords", strconv.Itoa(limit), func(ctx context.Context) (results.OperationResult[[]ScoreRecordView, error], error) {
		return runInTx(s, ctx, listTx)
	})
	return unwrap(result, err)
}

// GetScoreHistory returns the raises of player's score, oldest first.
func (s *HighscoreService) GetScoreHistory(ctx context.Context, player identity.Identity) ([]ScoreRaiseView, error) {
	historyTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[[]ScoreRaiseView, error], error) {
		if player.IsZero() {
			return results.FailureResult[[]ScoreRaiseView, error](ErrInvalidIdentity), nil
		}
		address := s.AddressOf(player).String()
		if _, err := s.repo.GetByAddress(ctx, db, address); err != nil {
			if errors.Is(err, highscoredb.ErrNotFound) {
				return results.FailureResult[[]ScoreRaiseView, error](ErrNotFound), nil
			}
			return results.OperationResult[[]ScoreRaiseView, error]{}, fmt.Errorf("failed to get record: %w", err)
		}

		raises, err := s.repo.ListRaises(ctx, db, address)
		if err != nil {
			return results.OperationResult[[]ScoreRaiseView, error]{}, fmt.Errorf("failed to list raises: %w", err)
		}
		views := make([]ScoreRaiseView, 0, len(raises))
		for _, r := range raises {
			views = append(views, ScoreRaiseView{
				Previous: r.PreviousScore,
				New:      r.NewScore,
				RaisedAt: r.RaisedAt,
			})
		}
		return results.SuccessResult[[]ScoreRaiseView, error](views), nil
	}

	result, err := withTelemetry(s, ctx, "GetScoreHistory", player.String(), func(ctx context.Context) (results.OperationResult[[]ScoreRaiseView, error], error) {
		return runInTx(s, ctx, historyTx)
	})
	return unwrap(result, err)
}

func clampLimit(limit int) int {
	if limit < MinLeaderboardLimit {
		return MinLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}
