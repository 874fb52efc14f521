package cli

import (
	"context"

	"github.com/m-mizutani/arcana/pkg/adapter"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const defaultArchiveKey = "arcana-history.json"

type archiveOptions struct {
	bucket string
	dir    string
	key    string
}

func archiveFlags(opts *archiveOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for the archive (local directory when empty)",
			Sources:     cli.EnvVars("ARCANA_ARCHIVE_BUCKET"),
			Destination: &opts.bucket,
		},
		&cli.StringFlag{
			Name:        "dir",
			Usage:       "Local directory for the archive",
			Value:       ".",
			Destination: &opts.dir,
		},
		&cli.StringFlag{
			Name:        "key",
			Aliases:     []string{"k"},
			Usage:       "Archive file or object name",
			Value:       defaultArchiveKey,
			Destination: &opts.key,
		},
	}
}

func exportCommand() *cli.Command {
	var (
		cfg       config
		opts      archiveOptions
		bqProject string
		bqDataset string
		bqTable   string
	)

	flags := archiveFlags(&opts)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "BigQuery project ID (defaults to --project)",
			Sources:     cli.EnvVars("ARCANA_BIGQUERY_PROJECT"),
			Destination: &bqProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "Export to this BigQuery dataset instead of an archive",
			Sources:     cli.EnvVars("ARCANA_BIGQUERY_DATASET"),
			Destination: &bqDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table for exported readings",
			Value:       "readings",
			Sources:     cli.EnvVars("ARCANA_BIGQUERY_TABLE"),
			Destination: &bqTable,
		},
	)
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export history to a JSON archive or BigQuery",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if bqDataset != "" {
				project := bqProject
				if project == "" {
					project = cfg.project
				}
				if project == "" {
					return goerr.New("bigquery-project or project is required")
				}

				bq, err := adapter.NewBigQuery(ctx, project)
				if err != nil {
					return goerr.Wrap(err, "failed to create bigquery client")
				}

				uc, release, err := cfg.newHistory(ctx, c, history.WithBigQuery(bq))
				if err != nil {
					return err
				}
				defer release()

				_, err = uc.ExportBigQuery(ctx, bqDataset, bqTable)
				return err
			}

			storage, err := newStorage(ctx, opts.bucket, opts.dir)
			if err != nil {
				return err
			}

			uc, release, err := cfg.newHistory(ctx, c, history.WithStorage(storage))
			if err != nil {
				return err
			}
			defer release()

			_, err = uc.Export(ctx, opts.key)
			return err
		},
	}
}

func importCommand() *cli.Command {
	var (
		cfg  config
		opts archiveOptions
	)

	flags := archiveFlags(&opts)
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "import",
		Usage: "Import readings from a JSON archive",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			storage, err := newStorage(ctx, opts.bucket, opts.dir)
			if err != nil {
				return err
			}

			uc, release, err := cfg.newHistory(ctx, c, history.WithStorage(storage))
			if err != nil {
				return err
			}
			defer release()

			_, err = uc.Import(ctx, opts.key)
			return err
		},
	}
}
