package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/dormkeys/cmd/app/commands"
	"github.com/allisson/dormkeys/internal/app"
)

func getDataCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "reencrypt-user-data",
			Usage: "Re-encrypt every record of a user under the active master key",
			Flags: []cli.Flag{userIDFlag(), formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.WithContainer(func(c *app.Container) error {
					masterKeys, err := c.MasterKeyUseCase()
					if err != nil {
						return err
					}
					data, err := c.DataEncryptionUseCase()
					if err != nil {
						return err
					}
					return commands.RunReEncryptUserData(ctx, masterKeys, data, c.Logger(), commands.DefaultIO().Writer,
						cmd.String("user-id"), cmd.String("format"))
				})
			},
		},
	}
}
