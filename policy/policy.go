// Package policy implements claim-based request authorization with
// memoized evaluation (spec.md §4.7, C7).
package policy

import "github.com/arc-self/alchemist-core/alerr"

func errMalformedPolicy(msg string) error {
	return alerr.New(alerr.KindInvalidPolicy, "policy.Validate: "+msg)
}

// Effect is the outcome a matching rule determines.
type Effect int

const (
	Deny Effect = iota
	Allow
)

func (e Effect) String() string {
	if e == Allow {
		return "Allow"
	}
	return "Deny"
}

// MarshalJSON renders an Effect as "Allow"/"Deny" rather than 0/1, so
// policy files read the way the Rules in DESIGN.md describe them.
func (e Effect) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

// UnmarshalJSON accepts "Allow"/"allow" and "Deny"/"deny"; any other
// spelling is rejected.
func (e *Effect) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"Allow"`, `"allow"`:
		*e = Allow
	case `"Deny"`, `"deny"`:
		*e = Deny
	default:
		return errMalformedPolicy("unrecognized effect " + string(data))
	}
	return nil
}

// ConditionKind is a closed tag identifying which Condition variant is
// populated. Conditions are a tagged struct, not an interface hierarchy,
// so evaluation never dispatches through virtual methods.
type ConditionKind int

const (
	CondHasClaim ConditionKind = iota
	CondInRole
	CondVariableEquals
	CondAnd
	CondOr
	CondNot
)

var conditionKindNames = map[ConditionKind]string{
	CondHasClaim:       "has_claim",
	CondInRole:         "in_role",
	CondVariableEquals: "variable_equals",
	CondAnd:            "and",
	CondOr:             "or",
	CondNot:            "not",
}

func (k ConditionKind) MarshalJSON() ([]byte, error) {
	name, ok := conditionKindNames[k]
	if !ok {
		return nil, errMalformedPolicy("unrecognized condition kind")
	}
	return []byte(`"` + name + `"`), nil
}

func (k *ConditionKind) UnmarshalJSON(data []byte) error {
	s := string(data)
	for kind, name := range conditionKindNames {
		if s == `"`+name+`"` {
			*k = kind
			return nil
		}
	}
	return errMalformedPolicy("unrecognized condition kind " + s)
}

// Condition is a closed sum type over the supported rule predicates.
// Exactly the fields relevant to Kind are populated.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// CondHasClaim / CondVariableEquals
	Claim string `json:"claim,omitempty"`
	Value string `json:"value,omitempty"` // CondVariableEquals only

	// CondInRole
	Role string `json:"role,omitempty"`

	// CondAnd / CondOr
	Children []Condition `json:"children,omitempty"`

	// CondNot
	Child *Condition `json:"child,omitempty"`
}

// HasClaim builds a CondHasClaim condition.
func HasClaim(claim string) Condition { return Condition{Kind: CondHasClaim, Claim: claim} }

// InRole builds a CondInRole condition.
func InRole(role string) Condition { return Condition{Kind: CondInRole, Role: role} }

// VariableEquals builds a CondVariableEquals condition.
func VariableEquals(claim, value string) Condition {
	return Condition{Kind: CondVariableEquals, Claim: claim, Value: value}
}

// And builds a CondAnd condition over its children.
func And(children ...Condition) Condition { return Condition{Kind: CondAnd, Children: children} }

// Or builds a CondOr condition over its children.
func Or(children ...Condition) Condition { return Condition{Kind: CondOr, Children: children} }

// Not negates a child condition.
func Not(child Condition) Condition { return Condition{Kind: CondNot, Child: &child} }

// Rule pairs a condition with the effect it determines when satisfied.
// Rules within a Policy evaluate in declaration order.
type Rule struct {
	Name      string    `json:"name"`
	Condition Condition `json:"condition"`
	Effect    Effect    `json:"effect"`
}

// Policy is an ordered set of rules evaluated at a given Priority.
// Priority governs evaluation order across policies (spec.md §4.7: "policy
// priority order" — lower values evaluate first).
type Policy struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Rules    []Rule `json:"rules"`
}

// Set is a validated, versioned collection of policies, evaluated in
// Priority order (ties broken by slice order).
type Set struct {
	Version  string   `json:"version"`
	Policies []Policy `json:"policies"`
}

// Validate checks that every condition tree is well-formed (no CondAnd/Or
// with zero children, no CondNot with a nil child). Malformed policies
// fail validation at load time, never at evaluate time (spec.md §4.7).
func (s Set) Validate() error {
	for _, p := range s.Policies {
		for _, r := range p.Rules {
			if err := validateCondition(r.Condition); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	switch c.Kind {
	case CondAnd, CondOr:
		if len(c.Children) == 0 {
			return errMalformedPolicy("and/or condition with no children")
		}
		for _, child := range c.Children {
			if err := validateCondition(child); err != nil {
				return err
			}
		}
	case CondNot:
		if c.Child == nil {
			return errMalformedPolicy("not condition with no child")
		}
		return validateCondition(*c.Child)
	case CondHasClaim, CondInRole:
		if c.Claim == "" && c.Role == "" {
			return errMalformedPolicy("claim/role condition missing key")
		}
	case CondVariableEquals:
		if c.Claim == "" {
			return errMalformedPolicy("variable_equals condition missing claim")
		}
	}
	return nil
}
