package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/m-mizutani/arcana/pkg/model"
)

var (
	titleColor   = color.New(color.FgHiMagenta, color.Bold)
	majorColor   = color.New(color.FgHiYellow, color.Bold)
	minorColor   = color.New(color.FgHiCyan)
	labelColor   = color.New(color.FgHiBlack)
	errorColor   = color.New(color.FgRed, color.Bold)
	favoriteMark = color.New(color.FgHiYellow).Sprint("★")
)

func cardColor(c model.Card) *color.Color {
	if c.IsMajor() {
		return majorColor
	}
	return minorColor
}

func renderSpread(w io.Writer, spread model.SpreadType, cards []model.DrawnCard) {
	titleColor.Fprintln(w, spread.Label())
	fmt.Fprintln(w)
	for _, dc := range cards {
		fmt.Fprintf(w, "  %s %s  %s\n",
			dc.Card.SymbolEmoji,
			cardColor(dc.Card).Sprintf("%s: %s", dc.PositionLabel, dc.Card.Name),
			labelColor.Sprint(strings.Join(dc.Card.UprightKeywords, ", ")),
		)
	}
	fmt.Fprintln(w)
}

func readingLabel(c model.ReadingCard) string {
	if c.Position == "" {
		return model.PositionSingle.Label()
	}
	return c.Position.Label()
}

func renderReading(w io.Writer, r *model.Reading) {
	mark := ""
	if r.Favorite {
		mark = " " + favoriteMark
	}
	titleColor.Fprintf(w, "%s", r.SpreadType.Label())
	fmt.Fprintf(w, "%s\n", mark)
	labelColor.Fprintf(w, "%s  %s\n\n", r.DateFormatted, r.ID)

	for _, c := range r.Cards {
		fmt.Fprintf(w, "  %s %s\n", c.Card.SymbolEmoji, cardColor(c.Card).Sprintf("%s: %s", readingLabel(c), c.Card.Name))
	}
	fmt.Fprintf(w, "\n%s\n", r.Interpretation)
}

func renderHistoryLine(w io.Writer, r *model.Reading) {
	names := make([]string, len(r.Cards))
	for i, c := range r.Cards {
		names[i] = c.Card.Name
	}
	mark := " "
	if r.Favorite {
		mark = favoriteMark
	}
	fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n", mark, r.ID, labelColor.Sprint(r.DateFormatted), r.SpreadType, strings.Join(names, ", "))
}

func renderCard(w io.Writer, c model.Card) {
	cardColor(c).Fprintf(w, "%s %s", c.SymbolEmoji, c.Name)
	fmt.Fprintf(w, "  (#%d, %s", c.ID, c.Arcana)
	if c.Suit != "" {
		fmt.Fprintf(w, ", %s %s", c.Suit, c.Rank)
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint("Keywords:"), strings.Join(c.UprightKeywords, ", "))
	fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint("Meaning:"), c.UprightMeaning)
	if c.Element != "" {
		fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint("Element:"), c.Element)
	}
	if c.Astrology != "" {
		fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint("Astrology:"), c.Astrology)
	}
	if c.Numerology != nil {
		fmt.Fprintf(w, "  %s %d\n", labelColor.Sprint("Numerology:"), *c.Numerology)
	}
}

// streamPrinter writes the newly revealed part of a growing text
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
}

func (p *streamPrinter) print(displayed string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := utf8.RuneCountInString(displayed)
	if n < p.printed {
		// the text was replaced; start over on a new line
		fmt.Fprintln(p.w)
		p.printed = 0
	}

	runes := []rune(displayed)
	fmt.Fprint(p.w, string(runes[p.printed:]))
	p.printed = n
}
