package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/alchemist-core/kernel"
)

func mustParse(t *testing.T, s string) Pattern {
	t.Helper()
	p, err := ParsePattern(s)
	require.NoError(t, err)
	return p
}

// TestPatternMatching covers testable property #4: for all subjects s
// matching pattern p, route(s) contains subscriber(p); for all subjects s
// not matching p, route(s) excludes subscriber(p).
func TestPatternMatching(t *testing.T) {
	cases := []struct {
		pattern string
		subject kernel.Subject
		want    bool
	}{
		{"graph.node.added.v1", kernel.Subject{"graph", "node", "added", "v1"}, true},
		{"graph.node.*.v1", kernel.Subject{"graph", "node", "added", "v1"}, true},
		{"graph.node.*.v1", kernel.Subject{"graph", "edge", "added", "v1"}, false},
		{"graph.>", kernel.Subject{"graph", "node", "added", "v1"}, true},
		{"graph.>", kernel.Subject{"schema", "node", "added", "v1"}, false},
		{"graph.edge.added.v1", kernel.Subject{"graph", "node", "added", "v1"}, false},
		{"*.*.*.*", kernel.Subject{"a", "b", "c", "d"}, true},
	}
	for _, c := range cases {
		p := mustParse(t, c.pattern)
		assert.Equal(t, c.want, p.Matches(c.subject), "pattern=%s subject=%s", c.pattern, c.subject.String())
	}
}

func TestParsePatternRejectsMultiNotLast(t *testing.T) {
	_, err := ParsePattern("graph.>.v1")
	require.Error(t, err)
}

func TestParsePatternRejectsTooManyTokens(t *testing.T) {
	_, err := ParsePattern("a.b.c.d.e")
	require.Error(t, err)
}

func TestSpecificityOrdering(t *testing.T) {
	exact := mustParse(t, "graph.node.added.v1")
	single := mustParse(t, "graph.node.*.v1")
	multi := mustParse(t, "graph.>")

	assert.True(t, exact.MoreSpecific(single))
	assert.True(t, single.MoreSpecific(multi))
	assert.True(t, exact.MoreSpecific(multi))
	assert.False(t, multi.MoreSpecific(exact))
}

func TestJoinAndMeet(t *testing.T) {
	a := mustParse(t, "graph.node.added.v1")
	b := mustParse(t, "graph.node.removed.v1")

	join := Join(a, b)
	assert.True(t, join.Matches(kernel.Subject{"graph", "node", "added", "v1"}))
	assert.True(t, join.Matches(kernel.Subject{"graph", "node", "removed", "v1"}))
	assert.True(t, join.Matches(kernel.Subject{"graph", "node", "anything", "v1"}))
	assert.False(t, join.Matches(kernel.Subject{"graph", "edge", "added", "v1"}))

	meet, ok := Meet(a, mustParse(t, "graph.node.*.v1"))
	require.True(t, ok)
	assert.Equal(t, "graph.node.added.v1", meet.String())

	_, ok = Meet(a, b)
	assert.False(t, ok)
}

func TestTranslatorFirstMatchWins(t *testing.T) {
	tr := NewTranslator(
		TranslateRule{
			Match: mustParse(t, "legacy.>"),
			Rewrite: func(s kernel.Subject) kernel.Subject {
				return kernel.Subject{"current", s[1], s[2], s[3]}
			},
		},
		TranslateRule{
			Match: mustParse(t, ">"),
			Rewrite: func(s kernel.Subject) kernel.Subject {
				return kernel.Subject{"fallback", s[1], s[2], s[3]}
			},
		},
	)

	got := tr.Translate(kernel.Subject{"legacy", "node", "added", "v1"})
	assert.Equal(t, kernel.Subject{"current", "node", "added", "v1"}, got)

	got = tr.Translate(kernel.Subject{"graph", "node", "added", "v1"})
	assert.Equal(t, kernel.Subject{"fallback", "node", "added", "v1"}, got)
}

func TestTranslatorNoMatchReturnsUnchanged(t *testing.T) {
	tr := NewTranslator(TranslateRule{
		Match:   mustParse(t, "legacy.>"),
		Rewrite: func(s kernel.Subject) kernel.Subject { return s },
	})
	s := kernel.Subject{"graph", "node", "added", "v1"}
	assert.Equal(t, s, tr.Translate(s))
}
