package acsm

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMachine constructs the scenario-1 machine from spec.md §8: patterns
// {"he", "she", "his", "hers"}, case-insensitive, under the given kind and
// row format.
func buildMachine(t *testing.T, kind Kind, format RowFormat) *ACSM {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Kind = kind
	cfg.RowFormat = format
	m := New(cfg)

	for _, pat := range []string{"he", "she", "his", "hers"} {
		_, err := m.AddPattern([]byte(pat), true)
		require.NoError(t, err)
	}
	require.NoError(t, m.Compile())
	return m
}

func collect(t *testing.T, m *ACSM, input string) []Match {
	t.Helper()
	var got []Match
	err := m.Search([]byte(input), func(mm Match) bool {
		got = append(got, mm)
		return true
	})
	require.NoError(t, err)
	return got
}

// scenarioPatterns maps the fixed scenario-1 pattern ids back to their text so
// assertions read the way spec.md §8 writes them.
var scenarioPatterns = []string{"he", "she", "his", "hers"}

func withNames(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = scenarioPatterns[m.ID] + "@" + itoa(m.End)
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func Test_Scenario1_UshersMatch(t *testing.T) {
	kinds := []Kind{KindNFA, KindDFA}
	formats := []RowFormat{FormatFull, FormatSparse, FormatBanded, FormatSparseBands}

	var reference []string
	for _, kind := range kinds {
		for _, format := range formats {
			m := buildMachine(t, kind, format)
			got := collect(t, m, "ushers")
			names := withNames(got)
			sort.Strings(names)

			if reference == nil {
				reference = names
			} else {
				assert.Equal(t, reference, names, "kind=%v format=%v", kind, format)
			}
		}
	}

	// she ends at 4, he ends at 4, hers ends at 6 (spec.md §8 scenario 1).
	assert.ElementsMatch(t, []string{"she@4", "he@4", "hers@6"}, reference)
}

func Test_Scenario1_EndOffsetsExact(t *testing.T) {
	m := buildMachine(t, KindDFA, FormatBanded)
	got := collect(t, m, "ushers")

	byName := map[string]Match{}
	for _, mm := range got {
		byName[scenarioPatterns[mm.ID]] = mm
	}

	require.Contains(t, byName, "she")
	require.Contains(t, byName, "he")
	require.Contains(t, byName, "hers")

	assert.Equal(t, Match{ID: 1, Start: 1, End: 4}, byName["she"])
	assert.Equal(t, Match{ID: 0, Start: 2, End: 4}, byName["he"])
	assert.Equal(t, Match{ID: 3, Start: 2, End: 6}, byName["hers"])
}

func Test_MatchFlagInvariant(t *testing.T) {
	for _, kind := range []Kind{KindNFA, KindDFA} {
		m := buildMachine(t, kind, FormatSparseBands)
		for s := 0; s < m.NumStates(); s++ {
			assert.Equal(t, len(m.matchIDs[s]) > 0, m.HasMatch(s), "state %d kind %v", s, kind)
		}
	}
}

func Test_DFANeverFails(t *testing.T) {
	m := buildMachine(t, KindDFA, FormatBanded)
	state := int32(0)
	input := []byte("the quick brown fox jumps over the lazy dog; ushers his hers she")
	for _, raw := range input {
		next := decodeNext(m.rows[state], xlatcase[raw], 0)
		assert.NotEqual(t, failState, next)
		state = next
	}
}

func Test_CaseSensitivePatternRejectsWrongCase(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg)
	_, err := m.AddPattern([]byte("She"), false)
	require.NoError(t, err)
	require.NoError(t, m.Compile())

	// The automaton itself is case-folded, so "she" reaches the terminal
	// state, but the case-sensitive check must reject it.
	got := collect(t, m, "she")
	assert.Empty(t, got)

	got = collect(t, m, "She")
	assert.Len(t, got, 1)
}

func Test_TrieModeSearchNotImplemented(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = KindTrie
	m := New(cfg)
	_, err := m.AddPattern([]byte("he"), true)
	require.NoError(t, err)
	require.NoError(t, m.Compile())

	err = m.Search([]byte("he"), func(Match) bool { return true })
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func Test_AddPatternAfterCompileRejected(t *testing.T) {
	m := New(DefaultConfig())
	_, err := m.AddPattern([]byte("he"), true)
	require.NoError(t, err)
	require.NoError(t, m.Compile())

	_, err = m.AddPattern([]byte("she"), true)
	assert.ErrorIs(t, err, ErrAlreadyCompiled)
}

func Test_NoMatchOnUnrelatedInput(t *testing.T) {
	m := buildMachine(t, KindDFA, FormatFull)
	got := collect(t, m, "xyz")
	assert.Empty(t, got)
}
