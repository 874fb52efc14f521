package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/gt"
)

func cards(n int) []model.Card {
	result := make([]model.Card, n)
	for i := range result {
		result[i] = model.Card{ID: i, Name: "Card", Arcana: model.ArcanaMajor}
	}
	return result
}

func TestNewDrawnCardsSingle(t *testing.T) {
	drawn, err := model.NewDrawnCards(model.SpreadSingle, cards(1))
	gt.NoError(t, err)
	gt.A(t, drawn).Length(1)
	gt.Equal(t, drawn[0].Position, model.PositionSingle)
	gt.Equal(t, drawn[0].PositionLabel, "Your Card")
}

func TestNewDrawnCardsThree(t *testing.T) {
	drawn, err := model.NewDrawnCards(model.SpreadThree, cards(3))
	gt.NoError(t, err)
	gt.A(t, drawn).Length(3)

	gt.Equal(t, drawn[0].PositionLabel, "Past")
	gt.Equal(t, drawn[1].PositionLabel, "Present")
	gt.Equal(t, drawn[2].PositionLabel, "Future")
	for i, d := range drawn {
		gt.Equal(t, d.Card.ID, i)
	}
}

func TestNewDrawnCardsErrors(t *testing.T) {
	testCases := []struct {
		name   string
		spread model.SpreadType
		n      int
		expect error
	}{
		{"empty", model.SpreadSingle, 0, model.ErrNoCards},
		{"too many for single", model.SpreadSingle, 3, model.ErrCardCountMismatch},
		{"too few for three", model.SpreadThree, 2, model.ErrCardCountMismatch},
		{"unknown spread", model.SpreadType("celtic"), 1, model.ErrInvalidSpread},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := model.NewDrawnCards(tc.spread, cards(tc.n))
			gt.Error(t, err)
			gt.True(t, errors.Is(err, tc.expect))
			gt.True(t, model.IsFormatError(err))
		})
	}
}

func TestSpreadLabel(t *testing.T) {
	gt.Equal(t, model.SpreadSingle.Label(), "Single Card Reading")
	gt.Equal(t, model.SpreadThree.Label(), "Three Card Spread (Past, Present, Future)")
}

func TestReadingDraftComplete(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 4, 0, 0, time.Local)
	drawn, err := model.NewDrawnCards(model.SpreadThree, cards(3))
	gt.NoError(t, err)

	draft := model.NewReadingDraft(model.SpreadThree, drawn, now)
	gt.V(t, draft.ID).NotEqual(model.ReadingID(""))
	gt.Equal(t, draft.Timestamp, now.UnixMilli())
	gt.Equal(t, draft.DateFormatted, "October 19, 2026, 03:04 PM")

	reading := draft.Complete("the tower falls")
	gt.Equal(t, reading.ID, draft.ID)
	gt.Equal(t, reading.Interpretation, "the tower falls")
	gt.False(t, reading.Favorite)
	gt.Equal(t, reading.Cards[0].Position, model.PositionPast)
	gt.Equal(t, reading.Cards[2].Position, model.PositionFuture)
	gt.NoError(t, reading.Validate())
}

func TestReadingDraftSingleOmitsPosition(t *testing.T) {
	drawn, err := model.NewDrawnCards(model.SpreadSingle, cards(1))
	gt.NoError(t, err)

	reading := model.NewReadingDraft(model.SpreadSingle, drawn, time.Now()).Complete("text")
	gt.Equal(t, reading.Cards[0].Position, model.Position(""))
}

func TestDescribe(t *testing.T) {
	gt.Equal(t, model.Describe(&model.ServiceError{Status: 400, Message: "quota exceeded"}), "API Error: quota exceeded")
	gt.Equal(t, model.Describe(&model.TimeoutError{}), "Network error: Unable to reach AI service")
	gt.Equal(t, model.Describe(model.ErrTransport), "Network error: Unable to reach AI service")
	gt.True(t, errors.Is(&model.TimeoutError{}, model.ErrTimeout))
	gt.True(t, errors.Is(&model.ServiceError{}, model.ErrService))
}
