package deck

import (
	_ "embed"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Size is the number of cards in a full deck
const Size = 78

//go:embed data/deck.yaml
var deckRaw []byte

var (
	ErrInvalidCount = goerr.New("invalid draw count")
	ErrCardNotFound = goerr.New("card not found")
)

// RNG is the randomness source used for shuffling
type RNG interface {
	IntN(n int) int
}

type deckFile struct {
	Cards []model.Card `yaml:"cards"`
}

var (
	loadOnce sync.Once
	catalog  []model.Card
	loadErr  error
)

func load() {
	var f deckFile
	if err := yaml.Unmarshal(deckRaw, &f); err != nil {
		loadErr = goerr.Wrap(err, "failed to parse embedded deck")
		return
	}
	if len(f.Cards) != Size {
		loadErr = goerr.New("embedded deck has wrong size", goerr.V("size", len(f.Cards)))
		return
	}
	for i, c := range f.Cards {
		if c.ID != i {
			loadErr = goerr.New("embedded deck is out of order", goerr.V("index", i), goerr.V("id", c.ID))
			return
		}
	}
	catalog = f.Cards
}

// All returns a copy of the full catalog ordered by ID
func All() ([]model.Card, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}

	cards := make([]model.Card, len(catalog))
	copy(cards, catalog)
	return cards, nil
}

// ByID returns the card with the given ID (0-77)
func ByID(id int) (*model.Card, error) {
	cards, err := All()
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(cards) {
		return nil, goerr.Wrap(ErrCardNotFound, "no card with id", goerr.V("id", id))
	}
	return &cards[id], nil
}

// ByName finds a card by name, ignoring case
func ByName(name string) (*model.Card, error) {
	cards, err := All()
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if strings.EqualFold(cards[i].Name, name) {
			return &cards[i], nil
		}
	}
	return nil, goerr.Wrap(ErrCardNotFound, "no card with name", goerr.V("name", name))
}

func filter(fn func(model.Card) bool) ([]model.Card, error) {
	cards, err := All()
	if err != nil {
		return nil, err
	}
	var result []model.Card
	for _, c := range cards {
		if fn(c) {
			result = append(result, c)
		}
	}
	return result, nil
}

func Major() ([]model.Card, error) {
	return filter(func(c model.Card) bool { return c.Arcana == model.ArcanaMajor })
}

func Minor() ([]model.Card, error) {
	return filter(func(c model.Card) bool { return c.Arcana == model.ArcanaMinor })
}

func BySuit(suit model.Suit) ([]model.Card, error) {
	return filter(func(c model.Card) bool { return c.Suit == suit })
}

// Shuffle returns the catalog in Fisher-Yates shuffled order. A nil rng uses
// the global source.
func Shuffle(rng RNG) ([]model.Card, error) {
	cards, err := All()
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = globalRNG{}
	}

	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	return cards, nil
}

// Draw returns count distinct cards from the top of a freshly shuffled deck
func Draw(count int, rng RNG) ([]model.Card, error) {
	if count < 1 || count > Size {
		return nil, goerr.Wrap(ErrInvalidCount, "cannot draw", goerr.V("count", count))
	}

	cards, err := Shuffle(rng)
	if err != nil {
		return nil, err
	}
	return cards[:count], nil
}

// DrawSpread draws the number of cards the spread requires
func DrawSpread(spread model.SpreadType, rng RNG) ([]model.Card, error) {
	if err := spread.Validate(); err != nil {
		return nil, err
	}
	return Draw(spread.CardCount(), rng)
}

type globalRNG struct{}

func (globalRNG) IntN(n int) int {
	return rand.IntN(n)
}
