package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ignite/engagement-tracker/internal/database"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "migrate",
		Usage: "manage the engagement tracker database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "PostgreSQL connection string",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					return database.Migrate(c.String("database-url"))
				},
			},
			{
				Name:  "down",
				Usage: "roll back the given number of migrations (default 1)",
				Action: func(c *cli.Context) error {
					steps := 1
					if c.Args().Present() {
						n, err := strconv.Atoi(c.Args().First())
						if err != nil || n < 1 {
							return fmt.Errorf("invalid step count %q", c.Args().First())
						}
						steps = n
					}
					return withMigrator(c, func(m *migrate.Migrate) error {
						if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
							return err
						}
						logger.Info("rolled back migrations", "steps", steps)
						return nil
					})
				},
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrate) error {
						v, dirty, err := m.Version()
						if errors.Is(err, migrate.ErrNilVersion) {
							fmt.Println("no migrations applied")
							return nil
						}
						if err != nil {
							return err
						}
						fmt.Printf("version %d (dirty=%t)\n", v, dirty)
						return nil
					})
				},
			},
			{
				Name:      "force",
				Usage:     "set the schema version without running migrations, clearing the dirty flag",
				ArgsUsage: "VERSION",
				Action: func(c *cli.Context) error {
					v, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid version %q", c.Args().First())
					}
					return withMigrator(c, func(m *migrate.Migrate) error {
						return m.Force(v)
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func withMigrator(c *cli.Context, fn func(m *migrate.Migrate) error) error {
	m, err := database.NewMigrator(c.String("database-url"))
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
