package highscoremigrations

import (
	"context"
	"fmt"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating score_records table...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewCreateTable().
				Model((*highscoredb.ScoreRecord)(nil)).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create score_records table: %w", err)
			}

			if _, err := tx.NewCreateIndex().
				Model((*highscoredb.ScoreRecord)(nil)).
				Index("idx_score_records_ledger_rank").
				IfNotExists().
				ColumnExpr("ledger_id, score DESC, created_at ASC").
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create ranking index: %w", err)
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping score_records table...")

		if _, err := db.NewDropTable().
			Model((*highscoredb.ScoreRecord)(nil)).
			IfExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop score_records table: %w", err)
		}
		return nil
	})
}
