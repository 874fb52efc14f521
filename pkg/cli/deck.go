package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/arcana/pkg/deck"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func deckCommand() *cli.Command {
	var (
		suit  string
		major bool
		minor bool
	)

	return &cli.Command{
		Name:      "deck",
		Usage:     "Browse the card catalog",
		ArgsUsage: "[card-name]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "suit",
				Usage:       "Only cards of this suit (wands, cups, swords, pentacles)",
				Destination: &suit,
			},
			&cli.BoolFlag{
				Name:        "major",
				Usage:       "Only major arcana",
				Destination: &major,
			},
			&cli.BoolFlag{
				Name:        "minor",
				Usage:       "Only minor arcana",
				Destination: &minor,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			w := c.Root().Writer

			if c.Args().Len() > 0 {
				card, err := deck.ByName(strings.Join(c.Args().Slice(), " "))
				if err != nil {
					return err
				}
				renderCard(w, *card)
				return nil
			}

			var (
				cards []model.Card
				err   error
			)
			switch {
			case suit != "":
				cards, err = deck.BySuit(model.Suit(strings.ToLower(suit)))
			case major && minor:
				return goerr.New("--major and --minor are exclusive")
			case major:
				cards, err = deck.Major()
			case minor:
				cards, err = deck.Minor()
			default:
				cards, err = deck.All()
			}
			if err != nil {
				return err
			}

			for _, card := range cards {
				fmt.Fprintf(w, "%3d  %s %s\n", card.ID, card.SymbolEmoji, cardColor(card).Sprint(card.Name))
			}
			return nil
		},
	}
}
