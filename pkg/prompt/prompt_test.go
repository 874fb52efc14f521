package prompt_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/arcana/pkg/deck"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/prompt"
	"github.com/m-mizutani/gt"
)

func testCard(name string, keywords []string, meaning string) model.Card {
	return model.Card{Name: name, Arcana: model.ArcanaMajor, UprightKeywords: keywords, UprightMeaning: meaning}
}

func TestFormatSingleWithoutQuery(t *testing.T) {
	req, err := model.NewInterpretationRequest(model.SpreadSingle, []model.Card{
		testCard("The Star", []string{"hope", "renewal"}, "Healing comes."),
	}, "")
	gt.NoError(t, err)

	out, err := prompt.Format(req)
	gt.NoError(t, err)
	gt.Equal(t, out, "Single Card Reading\n\n"+
		"Your Card: The Star\n- Keywords: hope, renewal\n- Meaning: Healing comes.\n\n"+
		"Please provide a mystical and insightful interpretation of this tarot reading.")
}

func TestFormatThreeWithQuery(t *testing.T) {
	req, err := model.NewInterpretationRequest(model.SpreadThree, []model.Card{
		testCard("The Fool", []string{"beginnings"}, "Leap."),
		testCard("The Tower", []string{"upheaval", "revelation"}, "Fall."),
		testCard("The Sun", []string{"joy"}, "Shine."),
	}, "Should I move?")
	gt.NoError(t, err)

	out, err := prompt.Format(req)
	gt.NoError(t, err)
	gt.Equal(t, out, "User Question: Should I move?\n\n"+
		"Three Card Spread (Past, Present, Future)\n\n"+
		"Past: The Fool\n- Keywords: beginnings\n- Meaning: Leap.\n\n"+
		"Present: The Tower\n- Keywords: upheaval, revelation\n- Meaning: Fall.\n\n"+
		"Future: The Sun\n- Keywords: joy\n- Meaning: Shine.\n\n"+
		"Please provide a mystical and insightful interpretation of this tarot reading, addressing the user's question.")
}

func TestFormatIsDeterministic(t *testing.T) {
	cards, err := deck.Draw(3, nil)
	gt.NoError(t, err)
	req, err := model.NewInterpretationRequest(model.SpreadThree, cards, "What awaits <me> & mine?")
	gt.NoError(t, err)

	a, err := prompt.Format(req)
	gt.NoError(t, err)
	b, err := prompt.Format(req)
	gt.NoError(t, err)
	gt.Equal(t, a, b)
	gt.S(t, a).Contains("User Question: What awaits <me> & mine?")
}

func TestFormatRejectsEmptyRequest(t *testing.T) {
	_, err := prompt.Format(&model.InterpretationRequest{SpreadType: model.SpreadSingle})
	gt.True(t, errors.Is(err, model.ErrNoCards))

	_, err = prompt.Format(nil)
	gt.Error(t, err)
}

func TestSystem(t *testing.T) {
	gt.S(t, prompt.System()).Contains("tarot reader")
}
