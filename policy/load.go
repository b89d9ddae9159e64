package policy

import (
	"encoding/json"
	"os"

	"github.com/arc-self/alchemist-core/alerr"
)

// LoadSet reads a JSON-encoded Set from path and validates it, so a
// malformed policy file fails at process startup rather than at the
// first Evaluate call (spec.md §4.7).
func LoadSet(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, alerr.Wrap(alerr.KindNotFound, "policy.LoadSet", err)
	}

	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return Set{}, alerr.Wrap(alerr.KindInvalidPolicy, "policy.LoadSet: decode", err)
	}

	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}
