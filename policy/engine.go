package policy

import (
	"sort"

	"github.com/arc-self/alchemist-core/alerr"
)

// Decision is the evaluate() outcome (spec.md §4.7).
type Decision struct {
	Effect Effect
	Reason string // set on Deny
}

// Engine evaluates policy sets against request contexts, consulting the
// memoizing Cache when one is attached.
type Engine struct {
	cache *Cache
}

// NewEngine builds an Engine. cache may be nil to evaluate uncached.
func NewEngine(cache *Cache) *Engine {
	return &Engine{cache: cache}
}

// Evaluate runs set against ctx: policies are considered in Priority
// order (ascending), rules within a policy in declaration order, and the
// first satisfied rule across the whole ordered sequence determines the
// effect — except that any Deny found at the lowest priority value seen
// so far overrides an Allow found at that same priority (spec.md §4.7:
// "Explicit Deny overrides Allow at the same priority"). Absence of a
// matching Allow defaults to Deny.
func (e *Engine) Evaluate(set Set, ctx Context) (Decision, error) {
	if e.cache != nil {
		if d, ok := e.cache.Get(set.Version, ctx); ok {
			return d, nil
		}
	}

	d, err := evaluateUncached(set, ctx)
	if err != nil {
		return Decision{}, err
	}

	if e.cache != nil {
		e.cache.Put(set.Version, ctx, d)
	}
	return d, nil
}

// evaluateUncached groups policies into priority tiers (ascending) and
// evaluates one tier at a time: within a tier, every policy's first
// matching rule (declaration order) is collected; a Deny anywhere in the
// tier wins over an Allow in the same tier (spec.md §4.7: "Explicit Deny
// overrides Allow at the same priority"); a tier with no match at all
// falls through to the next. No matching Allow in any tier defaults to
// Deny.
func evaluateUncached(set Set, ctx Context) (Decision, error) {
	policies := make([]Policy, len(set.Policies))
	copy(policies, set.Policies)
	sort.SliceStable(policies, func(i, j int) bool { return policies[i].Priority < policies[j].Priority })

	for i := 0; i < len(policies); {
		j := i
		tierPriority := policies[i].Priority
		for j < len(policies) && policies[j].Priority == tierPriority {
			j++
		}
		tier := policies[i:j]
		i = j

		var allowDecision *Decision
		for _, p := range tier {
			for _, r := range p.Rules {
				matched, err := evalCondition(r.Condition, ctx)
				if err != nil {
					return Decision{}, err
				}
				if !matched {
					continue
				}
				if r.Effect == Deny {
					return Decision{Effect: Deny, Reason: "policy=" + p.Name + " rule=" + r.Name}, nil
				}
				if allowDecision == nil {
					allowDecision = &Decision{Effect: Allow, Reason: "policy=" + p.Name + " rule=" + r.Name}
				}
				break // first matching rule within this policy wins
			}
		}
		if allowDecision != nil {
			return *allowDecision, nil
		}
	}

	return Decision{Effect: Deny, Reason: "no matching allow"}, nil
}

// evalCondition evaluates c against ctx. MissingClaim and UnknownRole are
// evaluated as false, never as errors (spec.md §4.7).
func evalCondition(c Condition, ctx Context) (bool, error) {
	switch c.Kind {
	case CondHasClaim:
		return ctx.HasClaim(c.Claim), nil
	case CondInRole:
		return ctx.InRole(c.Role), nil
	case CondVariableEquals:
		return ctx.VariableEquals(c.Claim, c.Value), nil
	case CondAnd:
		for _, child := range c.Children {
			ok, err := evalCondition(child, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case CondOr:
		for _, child := range c.Children {
			ok, err := evalCondition(child, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case CondNot:
		if c.Child == nil {
			return false, alerr.New(alerr.KindInvalidPolicy, "policy.evalCondition: not with no child")
		}
		ok, err := evalCondition(*c.Child, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, alerr.New(alerr.KindInvalidPolicy, "policy.evalCondition: unknown condition kind")
	}
}
