package model

import "github.com/m-mizutani/goerr/v2"

type SpreadType string

const (
	SpreadSingle SpreadType = "single"
	SpreadThree  SpreadType = "three"
)

// Validate checks if the spread type is known
func (s SpreadType) Validate() error {
	switch s {
	case SpreadSingle, SpreadThree:
		return nil
	default:
		return goerr.Wrap(ErrInvalidSpread, "unknown spread", goerr.V("spread", s))
	}
}

// CardCount returns how many cards the spread requires
func (s SpreadType) CardCount() int {
	switch s {
	case SpreadSingle:
		return 1
	case SpreadThree:
		return 3
	default:
		return 0
	}
}

// Label is the spread heading used in prompts and history listings
func (s SpreadType) Label() string {
	switch s {
	case SpreadSingle:
		return "Single Card Reading"
	case SpreadThree:
		return "Three Card Spread (Past, Present, Future)"
	default:
		return string(s)
	}
}

// Positions returns the positions of the spread in draw order
func (s SpreadType) Positions() []Position {
	switch s {
	case SpreadSingle:
		return []Position{PositionSingle}
	case SpreadThree:
		return []Position{PositionPast, PositionPresent, PositionFuture}
	default:
		return nil
	}
}

type Position string

const (
	PositionSingle  Position = "single"
	PositionPast    Position = "past"
	PositionPresent Position = "present"
	PositionFuture  Position = "future"
)

func (p Position) Label() string {
	switch p {
	case PositionSingle:
		return "Your Card"
	case PositionPast:
		return "Past"
	case PositionPresent:
		return "Present"
	case PositionFuture:
		return "Future"
	default:
		return string(p)
	}
}

// DrawnCard is a card placed at a position of a spread
type DrawnCard struct {
	Card          Card     `json:"card"`
	Position      Position `json:"position"`
	PositionLabel string   `json:"positionLabel"`
}

// NewDrawnCards assigns spread positions to cards by index
func NewDrawnCards(spread SpreadType, cards []Card) ([]DrawnCard, error) {
	if err := spread.Validate(); err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, goerr.Wrap(ErrNoCards, "cannot place cards", goerr.V("spread", spread))
	}
	if len(cards) != spread.CardCount() {
		return nil, goerr.Wrap(ErrCardCountMismatch, "cannot place cards",
			goerr.V("spread", spread),
			goerr.V("expected", spread.CardCount()),
			goerr.V("actual", len(cards)),
		)
	}

	positions := spread.Positions()
	drawn := make([]DrawnCard, len(cards))
	for i, card := range cards {
		drawn[i] = DrawnCard{
			Card:          card,
			Position:      positions[i],
			PositionLabel: positions[i].Label(),
		}
	}
	return drawn, nil
}
