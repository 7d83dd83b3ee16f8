package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Black-And-White-Club/highscore-ledger/app"
	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/Black-And-White-Club/highscore-ledger/db/bundb"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability"
	"github.com/nats-io/nkeys"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI().RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Value:   "config.yaml",
		Usage:   "path to the configuration file",
		EnvVars: []string{"CONFIG_PATH"},
	}
	ledgerFlag := &cli.StringFlag{
		Name:    "ledger",
		Value:   config.Defaults().Ledger.ID,
		Usage:   "ledger ID",
		EnvVars: []string{"LEDGER_ID"},
	}

	return &cli.App{
		Name:  "highscore",
		Usage: "per-player high score ledger",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and event handlers",
				Flags:  []cli.Flag{configFlag},
				Action: serve,
			},
			{
				Name:   "keygen",
				Usage:  "create a player key pair",
				Action: keygen,
			},
			{
				Name:  "token",
				Usage: "issue a caller token signed by a player seed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "seed", Usage: "player seed (SU...)", EnvVars: []string{"PLAYER_SEED"}, Required: true},
					&cli.DurationFlag{Name: "ttl", Value: identity.DefaultTokenTTL, Usage: "token lifetime"},
					ledgerFlag,
				},
				Action: token,
			},
			{
				Name:  "address",
				Usage: "print the record address of a player",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "player", Usage: "player public key (U...)", Required: true},
					ledgerFlag,
				},
				Action: address,
			},
			{
				Name:  "export",
				Usage: "write the leaderboard to an xlsx workbook",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "out", Value: "leaderboard.xlsx", Usage: "output file"},
					&cli.IntFlag{Name: "limit", Value: highscoreservice.MaxLeaderboardLimit, Usage: "number of records"},
				},
				Action: export,
			},
		},
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	obs, err := observability.Init(c.Context, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Observability.Environment,
		LogLevel:     cfg.Observability.LogLevel,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	application, err := app.NewApp(c.Context, cfg, obs)
	if err != nil {
		_ = obs.Shutdown(c.Context)
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	return application.RunUntilSignal(c.Context)
}

func keygen(c *cli.Context) error {
	kp, err := nkeys.CreateUser()
	if err != nil {
		return err
	}
	seed, err := kp.Seed()
	if err != nil {
		return err
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "seed:   %s\nplayer: %s\n", seed, pub)
	return nil
}

func token(c *cli.Context) error {
	kp, err := nkeys.FromSeed([]byte(c.String("seed")))
	if err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}
	tok, err := identity.IssueToken(kp, c.String("ledger"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, tok)
	return nil
}

func address(c *cli.Context) error {
	player, err := identity.ParseIdentity(c.String("player"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, identity.DeriveAddress(c.String("ledger"), player))
	return nil
}

func export(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	obs := observability.NewNoop()
	db, err := bundb.Open(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := highscoreservice.NewHighscoreService(
		highscoredb.NewRepository(db),
		obs.Provider.Logger,
		obs.Registry.HighscoreMetrics,
		obs.Registry.Tracer,
		db,
		cfg.Ledger.ID,
	)

	records, err := svc.ListTopRecords(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	data, err := highscoreservice.ExportLeaderboardXLSX(cfg.Ledger.ID, time.Now(), records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.String("out"), err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %d records to %s\n", len(records), c.String("out"))
	return nil
}
