package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSetValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.json")
	body := `{
		"version": "v1",
		"policies": [
			{
				"name": "admin-allow",
				"priority": 0,
				"rules": [
					{"name": "admins", "condition": {"kind": "in_role", "role": "admin"}, "effect": "Allow"}
				]
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	set, err := LoadSet(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", set.Version)
	require.Len(t, set.Policies, 1)
	assert.Equal(t, Allow, set.Policies[0].Rules[0].Effect)
	assert.Equal(t, CondInRole, set.Policies[0].Rules[0].Condition.Kind)
}

func TestLoadSetRejectsMalformedCondition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.json")
	body := `{
		"version": "v1",
		"policies": [
			{"name": "bad", "priority": 0, "rules": [
				{"name": "r", "condition": {"kind": "and", "children": []}, "effect": "Allow"}
			]}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadSet(path)
	require.Error(t, err)
}

func TestLoadSetMissingFile(t *testing.T) {
	_, err := LoadSet(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
