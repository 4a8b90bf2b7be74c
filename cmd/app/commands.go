// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"codeberg.org/oliverandrich/identity-service/internal/database"
	"codeberg.org/oliverandrich/identity-service/internal/repository"
	"codeberg.org/oliverandrich/identity-service/internal/server"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func closeDB(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

func createAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "Create the first admin account or promote an existing user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Usage:    "Admin username",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "Admin email (required when the user does not exist yet)",
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Admin password (required when the user does not exist yet)",
				Sources: cli.EnvVars("ADMIN_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, db, err := server.Setup(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			app, err := server.NewApp(cfg, repository.New(db), nil)
			if err != nil {
				return err
			}

			user, created, err := app.Auth.EnsureAdmin(ctx,
				cmd.String("username"), cmd.String("email"), cmd.String("password"))
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("created admin %s (%s)\n", user.Username, user.ID)
			} else {
				fmt.Printf("granted admin to %s (%s)\n", user.Username, user.ID)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withUnmigratedDB(func(_ context.Context, db *sqlx.DB) error {
					return database.RunMigrations(db)
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Action: withUnmigratedDB(func(_ context.Context, db *sqlx.DB) error {
					return database.MigrateDown(db)
				}),
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm dropping all data"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if !cmd.Bool("yes") {
						return errors.New("refusing to reset without --yes")
					}
					return withUnmigratedDB(func(_ context.Context, db *sqlx.DB) error {
						return database.MigrateReset(db)
					})(ctx, cmd)
				},
			},
			{
				Name:  "status",
				Usage: "Print the applied schema version and available migrations",
				Action: withUnmigratedDB(func(_ context.Context, db *sqlx.DB) error {
					version, err := database.MigrationVersion(db)
					if err != nil {
						return err
					}
					files, err := database.Migrations(db.DriverName())
					if err != nil {
						return err
					}
					fmt.Printf("driver:  %s\nversion: %d\n", db.DriverName(), version)
					for _, f := range files {
						fmt.Printf("  %s\n", path.Base(f))
					}
					return nil
				}),
			},
		},
	}
}

func withUnmigratedDB(fn func(ctx context.Context, db *sqlx.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		_, db, err := server.SetupUnmigrated(cmd)
		if err != nil {
			return err
		}
		defer closeDB(db)
		return fn(ctx, db)
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Purge expired verification tokens and sessions once",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, db, err := server.Setup(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			app, err := server.NewApp(cfg, repository.New(db), nil)
			if err != nil {
				return err
			}

			removed, err := app.Sweeper.RunOnce(ctx)
			names := make([]string, 0, len(removed))
			for name := range removed {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s: %d removed\n", name, removed[name])
			}
			return err
		},
	}
}
