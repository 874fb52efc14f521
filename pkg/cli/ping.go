package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/m-mizutani/arcana/pkg/adapter"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

func pingCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "ping",
		Usage: "Check that the interpretation service is reachable",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			w := c.Root().Writer

			switch cfg.provider {
			case providerDify:
				client, err := cfg.newDify()
				if err != nil {
					return err
				}
				if err := client.TestConnection(ctx); err != nil {
					errorColor.Fprintln(w, model.Describe(err))
					return err
				}
				fmt.Fprintf(w, "Dify is reachable (%s mode)\n", client.Mode())

				params, err := client.Parameters(ctx)
				if err != nil {
					// older apps may not expose parameters
					labelColor.Fprintf(w, "parameters unavailable: %s\n", model.Describe(err))
					return nil
				}
				keys := make([]string, 0, len(params))
				for k := range params {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					labelColor.Fprintf(w, "  %s: %v\n", k, params[k])
				}
				return nil

			case providerGemini:
				client, err := cfg.newGemini(ctx)
				if err != nil {
					return err
				}
				resp, err := client.GenerateContent(ctx, []*genai.Content{
					genai.NewContentFromText("Reply with one word: ready", genai.RoleUser),
				}, nil)
				if err != nil {
					return goerr.Wrap(err, "gemini is not reachable")
				}
				fmt.Fprintf(w, "Gemini %s is reachable: %s\n", client.Model(), adapter.ResponseText(resp))
				return nil

			default:
				return goerr.New("unknown provider", goerr.V("provider", cfg.provider))
			}
		},
	}
}
