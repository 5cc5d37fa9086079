package domain

import "fmt"

// Kind is the shape of an arbitrage. The set of kinds is closed: Simple,
// Triangular and CrossExchange.
type Kind interface {
	// Name is the wire name of the kind.
	Name() string
	// Tokens returns the tokens the kind trades, in route order.
	Tokens() []string
	sealed()
}

// Simple trades one pair on one venue.
type Simple struct {
	Base, Quote string
}

func (Simple) Name() string       { return "simple" }
func (k Simple) Tokens() []string { return []string{k.Base, k.Quote} }
func (Simple) sealed()            {}

// Triangular is a three-hop cycle starting and ending at the first token.
type Triangular struct {
	Cycle [3]string
}

func (Triangular) Name() string       { return "triangular" }
func (k Triangular) Tokens() []string { return k.Cycle[:] }
func (Triangular) sealed()            {}

// CrossExchange trades the same pair on two venues.
type CrossExchange struct {
	Base, Quote         string
	BuyVenue, SellVenue string
}

func (CrossExchange) Name() string       { return "cross_exchange" }
func (k CrossExchange) Tokens() []string { return []string{k.Base, k.Quote} }
func (CrossExchange) sealed()            {}

// ParseKind builds a Kind from its wire name, tokens and venues.
func ParseKind(name string, tokens, venues []string) (Kind, error) {
	switch name {
	case "simple":
		if len(tokens) != 2 {
			return nil, fmt.Errorf("simple arbitrage needs 2 tokens, got %d", len(tokens))
		}
		return Simple{Base: tokens[0], Quote: tokens[1]}, nil
	case "triangular":
		if len(tokens) != 3 {
			return nil, fmt.Errorf("triangular arbitrage needs 3 tokens, got %d", len(tokens))
		}
		return Triangular{Cycle: [3]string{tokens[0], tokens[1], tokens[2]}}, nil
	case "cross_exchange":
		if len(tokens) != 2 || len(venues) != 2 {
			return nil, fmt.Errorf("cross-exchange arbitrage needs 2 tokens and 2 venues, got %d/%d", len(tokens), len(venues))
		}
		if venues[0] == venues[1] {
			return nil, fmt.Errorf("cross-exchange venues must differ, got %q twice", venues[0])
		}
		return CrossExchange{Base: tokens[0], Quote: tokens[1], BuyVenue: venues[0], SellVenue: venues[1]}, nil
	default:
		return nil, fmt.Errorf("unknown arbitrage kind %q", name)
	}
}
