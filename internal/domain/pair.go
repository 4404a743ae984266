// Package domain defines the core data structures of the strategy engine.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Pair is a traded asset expressed against its quote currency.
type Pair struct {
	// From base asset symbol, e.g. BTC.
	From string
	// To quote currency symbol, e.g. USDT.
	To string
}

// ParsePair parses a pair from its underscore form, e.g. "BTC_USDT".
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("invalid pair %q, expected form BASE_QUOTE", s)
	}
	return Pair{From: parts[0], To: parts[1]}, nil
}

// String returns the underscore representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
