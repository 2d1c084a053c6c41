package game

import "fmt"

// Config carries the per-game rule parameters supplied at creation.
type Config struct {
	MaxPlayers       int
	MinPlayers       int
	MinDeckSize      int
	MaxDeckSize      int // 0 = unbounded
	StartingLife     int
	StartingHandSize int
	AbandonGraceSec  int // participant-loss grace before Abandoned

	Seed int64 // 0 = derive from clock
}

// DefaultConfig mirrors a standard constructed two-player match.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:       2,
		MinPlayers:       2,
		MinDeckSize:      60,
		MaxDeckSize:      0,
		StartingLife:     20,
		StartingHandSize: 7,
		AbandonGraceSec:  120,
	}
}

func (c Config) validate() error {
	if c.MinPlayers < 1 {
		return fmt.Errorf("min players must be >= 1")
	}
	if c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("max players %d < min players %d", c.MaxPlayers, c.MinPlayers)
	}
	if c.MinDeckSize < 0 {
		return fmt.Errorf("min deck size must be >= 0")
	}
	if c.MaxDeckSize != 0 && c.MaxDeckSize < c.MinDeckSize {
		return fmt.Errorf("max deck size %d < min deck size %d", c.MaxDeckSize, c.MinDeckSize)
	}
	if c.StartingHandSize < 0 {
		return fmt.Errorf("starting hand size must be >= 0")
	}
	return nil
}

// DeckList is the opaque deck submitted at game start: printed card ids in
// submission order, plus a sideboard. The core only cares about counts and
// identifiers.
type DeckList struct {
	Main      []string `json:"main"`
	Sideboard []string `json:"sideboard,omitempty"`
}

func (c Config) validateDeck(deck DeckList) error {
	if len(deck.Main) < c.MinDeckSize {
		return errValidation(CodeInvalidDeckList,
			fmt.Sprintf("main deck has %d cards, format requires at least %d", len(deck.Main), c.MinDeckSize))
	}
	if c.MaxDeckSize != 0 && len(deck.Main) > c.MaxDeckSize {
		return errValidation(CodeInvalidDeckList,
			fmt.Sprintf("main deck has %d cards, format allows at most %d", len(deck.Main), c.MaxDeckSize))
	}
	for _, id := range append(append([]string{}, deck.Main...), deck.Sideboard...) {
		if id == "" {
			return errValidation(CodeInvalidDeckList, "deck contains an empty card id")
		}
	}
	return nil
}
