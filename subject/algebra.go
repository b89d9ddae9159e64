package subject

// Expr is a pure choreography-planning expression over patterns: it
// describes how patterns relate (sequence, parallelism, choice) for
// offline planning and documentation purposes. Expr is never executed by
// the router directly — it has no runtime effect, matching spec.md
// §4.4's description of these operations as "conceptual."
type Expr interface {
	exprNode()
}

// Atom wraps a single Pattern as a leaf expression.
type Atom struct{ Pattern Pattern }

func (Atom) exprNode() {}

// Seq is sequential composition A·B: "A then B" for choreography planning.
type Seq struct{ A, B Expr }

func (Seq) exprNode() {}

// Par is parallel composition A⊗B: an independent concurrent operation
// set.
type Par struct{ A, B Expr }

func (Par) exprNode() {}

// Alt is choice composition A⊕B: alternatives, A listed before B.
type Alt struct{ A, B Expr }

func (Alt) exprNode() {}

// Sequential builds a Seq expression.
func Sequential(a, b Expr) Expr { return Seq{A: a, B: b} }

// Parallel builds a Par expression.
func Parallel(a, b Expr) Expr { return Par{A: a, B: b} }

// Choice builds an Alt expression.
func Choice(a, b Expr) Expr { return Alt{A: a, B: b} }

// Join computes the lattice join a⊔b: the most-specific pattern whose
// matched-subject set is a superset of both a's and b's. Per-token, two
// agreeing tokens are kept; anything else is promoted to the less
// specific of the two (literal/literal mismatch → *, anything vs > → >).
func Join(a, b Pattern) Pattern {
	ra, rb := a.specificityRank(), b.specificityRank()
	out := make(Pattern, 4)
	for i := 0; i < 4; i++ {
		switch {
		case ra[i] == 2 || rb[i] == 2:
			out[i] = Token{Kind: TokenMulti}
		case ra[i] == 0 && rb[i] == 0 && tokenAt(a, i).Literal == tokenAt(b, i).Literal:
			out[i] = Token{Kind: TokenLiteral, Literal: tokenAt(a, i).Literal}
		default:
			out[i] = Token{Kind: TokenSingle}
		}
	}
	return normalizeTrailingMulti(out)
}

// Meet computes the lattice meet a⊓b: the least-specific pattern whose
// matched-subject set is a subset of both. Conflicting literals have no
// common refinement; Meet reports ok=false in that case.
func Meet(a, b Pattern) (pattern Pattern, ok bool) {
	ra, rb := a.specificityRank(), b.specificityRank()
	out := make(Pattern, 4)
	for i := 0; i < 4; i++ {
		switch {
		case ra[i] == 0 && rb[i] == 0:
			if tokenAt(a, i).Literal != tokenAt(b, i).Literal {
				return nil, false
			}
			out[i] = Token{Kind: TokenLiteral, Literal: tokenAt(a, i).Literal}
		case ra[i] == 0:
			out[i] = Token{Kind: TokenLiteral, Literal: tokenAt(a, i).Literal}
		case rb[i] == 0:
			out[i] = Token{Kind: TokenLiteral, Literal: tokenAt(b, i).Literal}
		case ra[i] == 1 || rb[i] == 1:
			out[i] = Token{Kind: TokenSingle}
		default:
			out[i] = Token{Kind: TokenMulti}
		}
	}
	return normalizeTrailingMulti(out), true
}

// tokenAt returns the token of p at logical position i, expanding a
// trailing TokenMulti into a TokenMulti at every position from its index
// onward (so index-i access is always safe for i<4).
func tokenAt(p Pattern, i int) Token {
	if i < len(p) {
		t := p[i]
		if t.Kind != TokenMulti {
			return t
		}
	}
	for _, t := range p {
		if t.Kind == TokenMulti {
			return t
		}
	}
	if i < len(p) {
		return p[i]
	}
	return Token{Kind: TokenMulti}
}

// normalizeTrailingMulti collapses a run of trailing TokenMulti tokens
// into a single final TokenMulti, since ">" is only legal as the last
// pattern token.
func normalizeTrailingMulti(p Pattern) Pattern {
	if len(p) == 0 || p[len(p)-1].Kind != TokenMulti {
		return p
	}
	end := len(p) - 1
	for end > 0 && p[end-1].Kind == TokenMulti {
		end--
	}
	return append(append(Pattern{}, p[:end]...), Token{Kind: TokenMulti})
}
