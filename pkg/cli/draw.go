package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/arcana/pkg/deck"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/arcana/pkg/utils/typewriter"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type drawOptions struct {
	spread       string
	question     string
	ask          bool
	seed         int64
	speed        time.Duration
	noTypewriter bool
}

func drawCommand() *cli.Command {
	var (
		cfg  config
		opts drawOptions
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "spread",
			Aliases:     []string{"s"},
			Usage:       "Spread type (single, three)",
			Value:       string(model.SpreadThree),
			Destination: &opts.spread,
		},
		&cli.StringFlag{
			Name:        "question",
			Aliases:     []string{"q"},
			Usage:       "Question for the reading",
			Destination: &opts.question,
		},
		&cli.BoolFlag{
			Name:        "ask",
			Usage:       "Prompt for a question and offer a retry on failure",
			Destination: &opts.ask,
		},
		&cli.IntFlag{
			Name:        "seed",
			Usage:       "Seed for a reproducible draw (0 draws randomly)",
			Destination: &opts.seed,
		},
		&cli.DurationFlag{
			Name:        "speed",
			Usage:       "Typewriter delay per character",
			Value:       typewriter.DefaultSpeed,
			Sources:     cli.EnvVars("ARCANA_TYPEWRITER_SPEED"),
			Destination: &opts.speed,
		},
		&cli.BoolFlag{
			Name:        "no-typewriter",
			Usage:       "Print the interpretation at once",
			Sources:     cli.EnvVars("ARCANA_NO_TYPEWRITER"),
			Destination: &opts.noTypewriter,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "draw",
		Usage: "Draw cards and generate a reading",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			spread := model.SpreadType(opts.spread)
			if err := spread.Validate(); err != nil {
				return err
			}

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			interp, err := cfg.newInterpreter(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			var prompt *readline.Instance
			if opts.ask {
				prompt, err = readline.NewEx(&readline.Config{
					Prompt: "🔮 Your question (optional): ",
					Stdout: w,
				})
				if err != nil {
					return goerr.Wrap(err, "failed to start prompt")
				}
				defer prompt.Close()

				question, err := readLine(prompt)
				if err != nil {
					return err
				}
				opts.question = question
			}

			var rng deck.RNG
			if opts.seed != 0 {
				rng = rand.New(rand.NewPCG(uint64(opts.seed), uint64(opts.seed)))
			}

			cards, err := deck.DrawSpread(spread, rng)
			if err != nil {
				return goerr.Wrap(err, "failed to draw cards")
			}
			drawn, err := model.NewDrawnCards(spread, cards)
			if err != nil {
				return err
			}
			renderSpread(w, spread, drawn)

			ctrl := reading.New(interp, repo)
			for {
				r, err := generate(ctx, w, ctrl, spread, cards, opts)
				if err == nil {
					fmt.Fprintln(w)
					labelColor.Fprintf(w, "\nSaved as %s\n", r.ID)
					return nil
				}
				if r != nil {
					// interpretation shown but history append failed
					return err
				}

				errorColor.Fprintf(w, "\n%s\n", model.Describe(err))
				if prompt == nil || errors.Is(err, context.Canceled) {
					return err
				}

				prompt.SetPrompt("Try again? [y/N]: ")
				answer, rerr := readLine(prompt)
				if rerr != nil || !strings.EqualFold(answer, "y") {
					return err
				}
			}
		},
	}
}

// readLine returns an empty answer on EOF and an error on interrupt
func readLine(rl *readline.Instance) (string, error) {
	line, err := rl.Readline()
	switch {
	case errors.Is(err, readline.ErrInterrupt):
		return "", goerr.Wrap(context.Canceled, "interrupted")
	case errors.Is(err, io.EOF):
		return "", nil
	case err != nil:
		return "", goerr.Wrap(err, "failed to read input")
	}
	return strings.TrimSpace(line), nil
}

// generate runs one generation, showing a spinner until the first text
// arrives and revealing the text with a typewriter
func generate(ctx context.Context, w io.Writer, ctrl *reading.Controller, spread model.SpreadType, cards []model.Card, opts drawOptions) (*model.Reading, error) {
	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	spin.Suffix = " Consulting the cards..."
	spin.Start()
	var stopOnce sync.Once
	stopSpinner := func() { stopOnce.Do(spin.Stop) }
	defer stopSpinner()

	printer := &streamPrinter{w: w}
	tw := typewriter.New("",
		typewriter.WithSpeed(opts.speed),
		typewriter.WithOnTick(printer.print),
	)
	defer tw.Stop()

	if !opts.noTypewriter {
		unsubscribe := ctrl.State().Subscribe(func(snap model.SessionSnapshot) {
			if snap.StreamingText == "" {
				return
			}
			stopSpinner()
			tw.UpdateFullText(snap.StreamingText)
			tw.Start()
		})
		defer unsubscribe()
	}

	r, err := ctrl.Generate(ctx, spread, cards, opts.question)
	stopSpinner()
	if r == nil {
		return nil, err
	}

	if opts.noTypewriter {
		fmt.Fprint(w, r.Interpretation)
		return r, err
	}

	tw.UpdateFullText(r.Interpretation)
	tw.Start()
	if werr := tw.Wait(ctx); werr != nil {
		tw.SkipToEnd()
		printer.print(tw.Displayed())
	}
	return r, err
}
