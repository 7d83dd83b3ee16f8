package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/Black-And-White-Club/highscore-ledger/db/bundb"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	var db *bun.DB
	migrators := map[string]*migrate.Migrator{}

	cliApp := &cli.App{
		Name:  "bun",
		Usage: "highscore ledger schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Using %s database\n", cfg.Database.Driver)

			if db, err = bundb.Open(c.Context, cfg.Database); err != nil {
				return err
			}
			for name, m := range bundb.Migrators(db) {
				migrators[name] = m
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
		Commands: []*cli.Command{newMigrateCommand(migrators)},
	}

	if err := cliApp.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type moduleAction func(c *cli.Context, module string, m *migrate.Migrator) error

// eachModule runs action for every registered module in name order.
func eachModule(migrators map[string]*migrate.Migrator, action moduleAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		names := make([]string, 0, len(migrators))
		for name := range migrators {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := action(c, name, migrators[name]); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		return nil
	}
}

// oneModule resolves the module named by the first argument and passes the
// remaining arguments, joined with underscores, as the migration name.
func oneModule(migrators map[string]*migrate.Migrator, action func(c *cli.Context, module, name string, m *migrate.Migrator) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		module := c.Args().First()
		m, ok := migrators[module]
		if !ok {
			return fmt.Errorf("invalid module name: %q", module)
		}
		name := strings.Join(c.Args().Tail(), "_")
		if name == "" {
			return fmt.Errorf("migration name required")
		}
		return action(c, module, name, m)
	}
}

func printGroup(c *cli.Context, module, verb string, group *migrate.MigrationGroup) {
	if group.IsZero() {
		fmt.Fprintf(c.App.Writer, "%s: nothing to %s\n", module, verb)
		return
	}
	fmt.Fprintf(c.App.Writer, "%s: %s %s\n", module, verb, group)
}

func newMigrateCommand(migrators map[string]*migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: eachModule(migrators, func(c *cli.Context, module string, m *migrate.Migrator) error {
					fmt.Fprintf(c.App.Writer, "%s: init\n", module)
					return m.Init(c.Context)
				}),
			},
			{
				Name:  "migrate",
				Usage: "apply pending migrations",
				Action: eachModule(migrators, func(c *cli.Context, module string, m *migrate.Migrator) error {
					if err := m.Lock(c.Context); err != nil {
						return err
					}
					defer m.Unlock(c.Context) //nolint:errcheck

					group, err := m.Migrate(c.Context)
					if err != nil {
						return err
					}
					printGroup(c, module, "migrate", group)
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "roll back the last migration group",
				Action: eachModule(migrators, func(c *cli.Context, module string, m *migrate.Migrator) error {
					group, err := m.Rollback(c.Context)
					if err != nil {
						return err
					}
					printGroup(c, module, "roll back", group)
					return nil
				}),
			},
			{
				Name:      "create_go",
				Usage:     "create a Go migration",
				ArgsUsage: "<module> <name...>",
				Action: oneModule(migrators, func(c *cli.Context, module, name string, m *migrate.Migrator) error {
					mf, err := m.CreateGoMigration(c.Context, name)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s: created %s (%s)\n", module, mf.Name, mf.Path)
					return nil
				}),
			},
			{
				Name:      "create_sql",
				Usage:     "create up and down SQL migrations",
				ArgsUsage: "<module> <name...>",
				Action: oneModule(migrators, func(c *cli.Context, module, name string, m *migrate.Migrator) error {
					files, err := m.CreateSQLMigrations(c.Context, name)
					if err != nil {
						return err
					}
					for _, mf := range files {
						fmt.Fprintf(c.App.Writer, "%s: created %s (%s)\n", module, mf.Name, mf.Path)
					}
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "print migration status",
				Action: eachModule(migrators, func(c *cli.Context, module string, m *migrate.Migrator) error {
					ms, err := m.MigrationsWithStatus(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s\n  all: %s\n  applied: %s\n  unapplied: %s\n",
						module, ms, ms.Applied(), ms.Unapplied())
					return nil
				}),
			},
		},
	}
}
