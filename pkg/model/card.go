package model

type Arcana string

const (
	ArcanaMajor Arcana = "major"
	ArcanaMinor Arcana = "minor"
)

type Suit string

const (
	SuitWands     Suit = "wands"
	SuitCups      Suit = "cups"
	SuitSwords    Suit = "swords"
	SuitPentacles Suit = "pentacles"
)

// Suits returns minor arcana suits in catalog order
func Suits() []Suit {
	return []Suit{SuitWands, SuitCups, SuitSwords, SuitPentacles}
}

type Element string

const (
	ElementFire  Element = "fire"
	ElementWater Element = "water"
	ElementAir   Element = "air"
	ElementEarth Element = "earth"
)

// Card is one entry of the 78-card catalog. Cards are immutable values.
type Card struct {
	ID              int      `json:"id" yaml:"id" firestore:"id"`
	Name            string   `json:"name" yaml:"name" firestore:"name"`
	Arcana          Arcana   `json:"arcana" yaml:"arcana" firestore:"arcana"`
	Suit            Suit     `json:"suit,omitempty" yaml:"suit,omitempty" firestore:"suit,omitempty"`
	Rank            string   `json:"rank,omitempty" yaml:"rank,omitempty" firestore:"rank,omitempty"`
	UprightKeywords []string `json:"uprightKeywords" yaml:"uprightKeywords" firestore:"upright_keywords"`
	UprightMeaning  string   `json:"uprightMeaning" yaml:"uprightMeaning" firestore:"upright_meaning"`

	IconKey     string `json:"iconKey" yaml:"iconKey" firestore:"icon_key"`
	ColorScheme string `json:"colorScheme" yaml:"colorScheme" firestore:"color_scheme"`
	SymbolEmoji string `json:"symbolEmoji,omitempty" yaml:"symbolEmoji,omitempty" firestore:"symbol_emoji,omitempty"`

	Numerology *int    `json:"numerology,omitempty" yaml:"numerology,omitempty" firestore:"numerology,omitempty"`
	Element    Element `json:"element,omitempty" yaml:"element,omitempty" firestore:"element,omitempty"`
	Astrology  string  `json:"astrology,omitempty" yaml:"astrology,omitempty" firestore:"astrology,omitempty"`
}

// IsMajor reports whether the card belongs to the major arcana
func (c Card) IsMajor() bool {
	return c.Arcana == ArcanaMajor
}
