package cli

import (
	"context"

	"github.com/m-mizutani/arcana/pkg/metrics"
	"github.com/m-mizutani/arcana/pkg/server"
	"github.com/m-mizutani/arcana/pkg/service/mcp"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ARCANA_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve readings over HTTP with SSE session events and MCP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			repo, release, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer release()

			interp, err := cfg.newInterpreter(ctx)
			if err != nil {
				return err
			}

			recorder := metrics.New(prometheus.DefaultRegisterer)
			ctrl := reading.New(interp, repo, reading.WithMetrics(recorder))
			uc := history.New(repo, history.WithOutput(c.Root().ErrWriter))

			srv := server.New(ctrl, uc,
				server.WithAddr(addr),
				server.WithLogger(logging.From(ctx)),
				server.WithMetrics(recorder, prometheus.DefaultGatherer),
				server.WithMCP(mcp.New(ctrl, uc).HTTPHandler()),
			)
			return srv.Run(ctx)
		},
	}
}

func mcpCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Run as an MCP server over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol; logs go to stderr
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			repo, release, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer release()

			interp, err := cfg.newInterpreter(ctx)
			if err != nil {
				return err
			}

			ctrl := reading.New(interp, repo)
			uc := history.New(repo, history.WithOutput(c.Root().ErrWriter))
			return mcp.New(ctrl, uc).Run(ctx)
		},
	}
}
