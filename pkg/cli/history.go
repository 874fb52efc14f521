package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of readings to skip",
			Value:       0,
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of readings to show",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "List saved readings, newest first",
		Flags: flags,
		Commands: []*cli.Command{
			showCommand(),
			favoriteCommand(),
			deleteCommand(),
			clearCommand(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, release, err := cfg.newHistory(ctx, c)
			if err != nil {
				return err
			}
			defer release()

			readings, err := uc.List(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}
			total, err := uc.Count(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(readings) == 0 {
				fmt.Fprintln(w, "No readings yet.")
				return nil
			}

			for _, r := range readings {
				renderHistoryLine(w, r)
			}
			labelColor.Fprintf(w, "\n%d of %d readings (max %d kept)\n", len(readings), total, repository.MaxReadings)
			return nil
		},
	}
}

// newHistory sets up logging and opens the history store for a subcommand
func (cfg *config) newHistory(ctx context.Context, c *cli.Command, opts ...history.Option) (*history.UseCase, func(), error) {
	ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
	if err != nil {
		return nil, nil, err
	}

	repo, release, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]history.Option{history.WithOutput(c.Root().Writer)}, opts...)
	return history.New(repo, opts...), release, nil
}

func readingIDArg(c *cli.Command) (model.ReadingID, error) {
	if c.Args().Len() != 1 {
		return "", goerr.New("reading ID is required")
	}
	return model.ReadingID(c.Args().First()), nil
}

func showCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a saved reading",
		ArgsUsage: "<reading-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := readingIDArg(c)
			if err != nil {
				return err
			}

			uc, release, err := cfg.newHistory(ctx, c)
			if err != nil {
				return err
			}
			defer release()

			r, err := uc.Show(ctx, id)
			if err != nil {
				return err
			}
			renderReading(c.Root().Writer, r)
			return nil
		},
	}
}

func favoriteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "favorite",
		Aliases:   []string{"fav"},
		Usage:     "Toggle the favorite mark of a reading",
		ArgsUsage: "<reading-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := readingIDArg(c)
			if err != nil {
				return err
			}

			uc, release, err := cfg.newHistory(ctx, c)
			if err != nil {
				return err
			}
			defer release()

			r, err := uc.ToggleFavorite(ctx, id)
			if err != nil {
				return err
			}
			renderHistoryLine(c.Root().Writer, r)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a saved reading",
		ArgsUsage: "<reading-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := readingIDArg(c)
			if err != nil {
				return err
			}

			uc, release, err := cfg.newHistory(ctx, c)
			if err != nil {
				return err
			}
			defer release()

			if err := uc.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Deleted %s\n", id)
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	var (
		cfg   config
		force bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "force",
			Aliases:     []string{"f"},
			Usage:       "Required to confirm removing every reading",
			Destination: &force,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every saved reading",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if !force {
				return goerr.New("use --force to remove every reading")
			}

			uc, release, err := cfg.newHistory(ctx, c)
			if err != nil {
				return err
			}
			defer release()

			n, err := uc.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Removed %d readings\n", n)
			return nil
		},
	}
}
