package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/dormkeys/cmd/app/commands"
	"github.com/allisson/dormkeys/internal/app"
)

func dateFlag(name, alias, bound string) cli.Flag {
	return &cli.StringFlag{
		Name:     name,
		Aliases:  []string{alias},
		Required: true,
		Usage:    bound + " of the window, YYYY-MM-DD or YYYY-MM-DD HH:MM:SS (UTC)",
	}
}

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Serve the key management API, the metrics endpoint and the outbox relay",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply pending schema migrations for DB_DRIVER",
			Action: func(_ context.Context, _ *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					db, err := c.DB()
					if err != nil {
						return err
					}
					return commands.RunMigrations(c.Logger(), db, c.Config().DBDriver, "migrations")
				})
			},
		},
		{
			Name:  "outbox-worker",
			Usage: "Relay key lifecycle events from the outbox without serving HTTP",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					relay, err := c.OutboxUseCase()
					if err != nil {
						return err
					}
					return commands.RunOutboxWorker(ctx, relay, c.Logger())
				})
			},
		},
		{
			Name:  "verify-audit-logs",
			Usage: "Check the HMAC signature of every audit row in a time window",
			Flags: []cli.Flag{
				dateFlag("start-date", "s", "Start"),
				dateFlag("end-date", "e", "End"),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					auditLogs, err := c.AuditLogUseCase()
					if err != nil {
						return err
					}
					return commands.RunVerifyAuditLogs(ctx, auditLogs, c.Logger(), commands.DefaultIO().Writer,
						cmd.String("start-date"), cmd.String("end-date"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "create-kms-key",
			Usage: "Print a local base64key:// KMS key URI and an audit signing key for development",
			Action: func(_ context.Context, _ *cli.Command) error {
				return commands.RunCreateKMSKey(commands.DefaultRandom, commands.DefaultIO().Writer)
			},
		},
	}
}
