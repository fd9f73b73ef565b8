package poker

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Deck is the fixed ordered set of estimate values players may vote with.
type Deck struct {
	values []float64
}

// DefaultDeck returns the standard planning poker estimate set.
func DefaultDeck() Deck {
	return Deck{values: []float64{1, 2, 3, 5, 8, 13, 21, 40, 100}}
}

// NewDeck builds a deck from an explicit value list, preserving order.
func NewDeck(values []float64) (Deck, error) {
	if len(values) == 0 {
		return Deck{}, fmt.Errorf("deck must contain at least one value")
	}
	seen := make(map[float64]bool, len(values))
	for _, v := range values {
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return Deck{}, fmt.Errorf("deck value %v is not a positive finite number", v)
		}
		if seen[v] {
			return Deck{}, fmt.Errorf("duplicate deck value %v", v)
		}
		seen[v] = true
	}
	out := make([]float64, len(values))
	copy(out, values)
	return Deck{values: out}, nil
}

type deckConfig struct {
	Deck struct {
		Values []float64 `yaml:"values"`
	} `yaml:"deck"`
}

// LoadDeck reads a deck definition from a YAML config file.
func LoadDeck(path string) (Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Deck{}, fmt.Errorf("failed to read deck config: %w", err)
	}

	var config deckConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Deck{}, fmt.Errorf("failed to parse deck config: %w", err)
	}

	deck, err := NewDeck(config.Deck.Values)
	if err != nil {
		return Deck{}, fmt.Errorf("invalid deck config %s: %w", path, err)
	}
	return deck, nil
}

// Contains reports whether v is a member of the estimate set.
func (d Deck) Contains(v float64) bool {
	for _, dv := range d.values {
		if dv == v {
			return true
		}
	}
	return false
}

// Values returns a copy of the deck values in display order.
func (d Deck) Values() []float64 {
	out := make([]float64, len(d.values))
	copy(out, d.values)
	return out
}
