// Package subject implements the pure subject algebra described in
// spec.md §4.4 (C4): parsing, wildcard pattern matching, specificity
// ordering, composition, and rule-based translation. Nothing here talks
// to a bus; package router wires these pure functions to NATS.
package subject

import (
	"strings"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
)

// WildcardKind classifies a single pattern token.
type WildcardKind uint8

const (
	// TokenLiteral matches exactly one subject token equal to Literal.
	TokenLiteral WildcardKind = iota
	// TokenSingle ("*") matches exactly one arbitrary subject token.
	TokenSingle
	// TokenMulti (">") matches every remaining subject token; legal only
	// as a pattern's final token.
	TokenMulti
)

// Token is one position of a Pattern.
type Token struct {
	Kind    WildcardKind
	Literal string // meaningful only when Kind == TokenLiteral
}

// Pattern is a subject pattern: a sequence of tokens, at most four long,
// where a TokenMulti token (if present) must be last.
type Pattern []Token

// ParsePattern parses a dotted pattern string, validating the grammar of
// spec.md §6: `*` as a whole-token wildcard, `>` legal only as the final
// token, literal tokens matching `[A-Za-z0-9_-]+`.
func ParsePattern(s string) (Pattern, error) {
	if s == "" {
		return nil, alerr.New(alerr.KindInvalidSubject, "subject.ParsePattern")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return nil, alerr.New(alerr.KindInvalidSubject, "subject.ParsePattern")
	}
	pattern := make(Pattern, 0, len(parts))
	for i, tok := range parts {
		switch {
		case tok == "":
			return nil, alerr.New(alerr.KindInvalidSubject, "subject.ParsePattern")
		case tok == ">":
			if i != len(parts)-1 {
				return nil, alerr.New(alerr.KindInvalidSubject, "subject.ParsePattern")
			}
			pattern = append(pattern, Token{Kind: TokenMulti})
		case tok == "*":
			pattern = append(pattern, Token{Kind: TokenSingle})
		default:
			for _, r := range tok {
				if !isPatternRune(r) {
					return nil, alerr.New(alerr.KindInvalidSubject, "subject.ParsePattern")
				}
			}
			pattern = append(pattern, Token{Kind: TokenLiteral, Literal: tok})
		}
	}
	return pattern, nil
}

func isPatternRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		return true
	default:
		return false
	}
}

// String renders a Pattern back to its dotted form.
func (p Pattern) String() string {
	toks := make([]string, len(p))
	for i, t := range p {
		switch t.Kind {
		case TokenSingle:
			toks[i] = "*"
		case TokenMulti:
			toks[i] = ">"
		default:
			toks[i] = t.Literal
		}
	}
	return strings.Join(toks, ".")
}

// Matches reports whether subject s matches pattern p.
func (p Pattern) Matches(s kernel.Subject) bool {
	si := 0
	for _, t := range p {
		if t.Kind == TokenMulti {
			return true // consumes all remaining subject tokens
		}
		if si >= len(s) {
			return false
		}
		switch t.Kind {
		case TokenSingle:
			// matches any token
		case TokenLiteral:
			if s[si] != t.Literal {
				return false
			}
		}
		si++
	}
	return si == len(s)
}

// specificityRank expands p to the full four-position rank vector used
// for ordering: 0=exact, 1=single-wildcard, 2=multi-wildcard, with a
// trailing TokenMulti implicitly filling every remaining position at
// rank 2 (spec.md §4.4: "exact token < single-wildcard * < multi-wildcard
// >").
func (p Pattern) specificityRank() [4]int {
	var rank [4]int
	for i := 0; i < 4; i++ {
		rank[i] = 2
	}
	for i, t := range p {
		if i >= 4 {
			break
		}
		switch t.Kind {
		case TokenLiteral:
			rank[i] = 0
		case TokenSingle:
			rank[i] = 1
		case TokenMulti:
			for j := i; j < 4; j++ {
				rank[j] = 2
			}
			return rank
		}
	}
	return rank
}

// MoreSpecific reports whether p is strictly more specific than other —
// p's rank vector is lexicographically smaller. Used to break routing
// ties in favor of the more specific subscription (spec.md §4.4).
func (p Pattern) MoreSpecific(other Pattern) bool {
	pr, or := p.specificityRank(), other.specificityRank()
	for i := 0; i < 4; i++ {
		if pr[i] != or[i] {
			return pr[i] < or[i]
		}
	}
	return false
}
