package highscoremigrations

import (
	"context"
	"fmt"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating score_raises table...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewCreateTable().
				Model((*highscoredb.ScoreRaise)(nil)).
				IfNotExists().
				ForeignKey(`("address") REFERENCES "score_records" ("address") ON DELETE CASCADE`).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create score_raises table: %w", err)
			}

			if _, err := tx.NewCreateIndex().
				Model((*highscoredb.ScoreRaise)(nil)).
				Index("idx_score_raises_address").
				IfNotExists().
				Column("address", "raised_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create score_raises index: %w", err)
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping score_raises table...")

		if _, err := db.NewDropTable().
			Model((*highscoredb.ScoreRaise)(nil)).
			IfExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop score_raises table: %w", err)
		}
		return nil
	})
}
