package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hazyhaar/templio/auth"
)

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage accounts",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a password account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name",
					},
					&cli.StringFlag{
						Name:    "password",
						Usage:   "Password (at least 8 characters)",
						Sources: cli.EnvVars("TEMPLIO_PASSWORD"),
					},
				},
				Action: runUserAdd,
			},
		},
	}
}

func runUserAdd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	password := cmd.String("password")
	if password == "" {
		return fmt.Errorf("--password or TEMPLIO_PASSWORD is required")
	}

	db, err := openDB(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	u, err := auth.NewUsers(db).Create(ctx, cmd.String("email"), cmd.String("name"), password)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "created user %s (%s)\n", u.ID, u.Email)
	return nil
}
