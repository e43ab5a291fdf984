package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/dormkeys/cmd/app/commands"
	"github.com/allisson/dormkeys/internal/app"
)

func keyTypeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "key-type",
		Aliases: []string{"t"},
		Usage:   "Key type (defaults to master)",
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "generate-master-key",
			Usage: "Provision the first master key of a user and print it once",
			Flags: []cli.Flag{userIDFlag(), keyTypeFlag(), formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					masterKeys, err := c.MasterKeyUseCase()
					if err != nil {
						return err
					}
					return commands.RunGenerateMasterKey(ctx, masterKeys, c.Logger(), commands.DefaultIO().Writer,
						cmd.String("user-id"), cmd.String("key-type"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "rotate-master-key",
			Usage: "Replace the active master key of a user with a new version",
			Flags: []cli.Flag{
				userIDFlag(),
				keyTypeFlag(),
				&cli.StringFlag{
					Name:     "reason",
					Aliases:  []string{"r"},
					Required: true,
					Usage:    "Reason recorded on the audit log (e.g. scheduled, compromise)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					masterKeys, err := c.MasterKeyUseCase()
					if err != nil {
						return err
					}
					return commands.RunRotateMasterKey(ctx, masterKeys, c.Logger(), commands.DefaultIO().Writer,
						cmd.String("user-id"), cmd.String("key-type"), cmd.String("reason"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "rotate-expired-keys",
			Usage: "Rotate master keys whose TTL has elapsed",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   100,
					Usage:   "Maximum number of keys to rotate in one run",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					masterKeys, err := c.MasterKeyUseCase()
					if err != nil {
						return err
					}
					return commands.RunRotateExpiredKeys(ctx, masterKeys, c.Logger(), commands.DefaultIO().Writer,
						int(cmd.Int("limit")), cmd.String("format"))
				})
			},
		},
	}
}
