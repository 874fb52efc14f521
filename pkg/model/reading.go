package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type ReadingID string

// NewReadingID generates a new unique ReadingID
func NewReadingID() ReadingID {
	return ReadingID(uuid.New().String())
}

func (id ReadingID) String() string {
	return string(id)
}

// DateLayout renders like "October 19, 2026, 03:04 PM"
const DateLayout = "January 2, 2006, 03:04 PM"

// FormatDate renders t in the local zone with DateLayout
func FormatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// ReadingCard is a card as stored in a reading record. Position is empty for
// the single card spread.
type ReadingCard struct {
	Card     Card     `json:"card" firestore:"card"`
	Position Position `json:"position,omitempty" firestore:"position,omitempty"`
}

// Reading is a completed reading persisted in history
type Reading struct {
	ID             ReadingID     `json:"id" firestore:"id"`
	Timestamp      int64         `json:"timestamp" firestore:"timestamp"`
	DateFormatted  string        `json:"dateFormatted" firestore:"date_formatted"`
	SpreadType     SpreadType    `json:"spreadType" firestore:"spread_type"`
	Cards          []ReadingCard `json:"cards" firestore:"cards"`
	Interpretation string        `json:"interpretation" firestore:"interpretation"`
	Favorite       bool          `json:"favorite" firestore:"favorite"`
}

// CreatedAt converts the epoch millisecond timestamp
func (r *Reading) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Validate checks the fields required for persistence
func (r *Reading) Validate() error {
	if r.ID == "" {
		return goerr.New("reading id is required")
	}
	if err := r.SpreadType.Validate(); err != nil {
		return err
	}
	if len(r.Cards) != r.SpreadType.CardCount() {
		return goerr.Wrap(ErrCardCountMismatch, "invalid reading",
			goerr.V("id", r.ID),
			goerr.V("cards", len(r.Cards)),
		)
	}
	return nil
}

// ReadingDraft fixes identity and creation time of a reading when a
// generation starts. Complete turns it into the persisted record.
type ReadingDraft struct {
	ID            ReadingID
	Timestamp     int64
	DateFormatted string
	SpreadType    SpreadType
	Cards         []ReadingCard
}

// NewReadingDraft builds a draft from placed cards at now
func NewReadingDraft(spread SpreadType, drawn []DrawnCard, now time.Time) *ReadingDraft {
	cards := make([]ReadingCard, len(drawn))
	for i, d := range drawn {
		cards[i] = ReadingCard{Card: d.Card}
		if spread != SpreadSingle {
			cards[i].Position = d.Position
		}
	}

	return &ReadingDraft{
		ID:            NewReadingID(),
		Timestamp:     now.UnixMilli(),
		DateFormatted: FormatDate(now),
		SpreadType:    spread,
		Cards:         cards,
	}
}

// Complete returns the persisted record with the final interpretation
func (d *ReadingDraft) Complete(interpretation string) *Reading {
	cards := make([]ReadingCard, len(d.Cards))
	copy(cards, d.Cards)

	return &Reading{
		ID:             d.ID,
		Timestamp:      d.Timestamp,
		DateFormatted:  d.DateFormatted,
		SpreadType:     d.SpreadType,
		Cards:          cards,
		Interpretation: interpretation,
		Favorite:       false,
	}
}
