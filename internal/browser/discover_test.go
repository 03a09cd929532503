package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/browser/browsertest"
)

// pageWithProbes scripts the enumeration script's return value.
func pageWithProbes(t *testing.T, probes []candidateProbe) *browsertest.FakePage {
	t.Helper()
	raw, err := json.Marshal(probes)
	require.NoError(t, err)
	page := browsertest.NewFakePage()
	page.EvaluateFunc = func(expression string, out interface{}) error {
		return json.Unmarshal(raw, out)
	}
	return page
}

func TestDescribeMatches(t *testing.T) {
	page := pageWithProbes(t, []candidateProbe{
		{Tag: "button", Text: "Save changes", ID: "save-btn", Class: "btn primary"},
		{Tag: "button", Text: "Save draft", TestID: "save-draft", Class: "btn"},
	})

	candidates, err := DescribeMatches(context.Background(), page, "button", 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "button", candidates[0].Tag)
	assert.Equal(t, []string{"btn", "primary"}, candidates[0].Classes)
	assert.NotEmpty(t, candidates[0].SuggestedSelectors)
	assert.NotEmpty(t, candidates[1].SuggestedSelectors)
}

func TestSuggestSelectorsPriority(t *testing.T) {
	c := schemas.ElementCandidate{
		Tag:       "input",
		ID:        "email",
		TestID:    "email-field",
		Classes:   []string{"form-control"},
		AriaLabel: "Email address",
		Type:      "email",
	}
	got := suggestSelectors(c)
	// Strongest identifiers win and the list caps at three.
	assert.Equal(t, []string{"#email", `[data-testid="email-field"]`, "input.form-control"}, got)
}

func TestSuggestSelectorsWithoutStrongIdentifiers(t *testing.T) {
	c := schemas.ElementCandidate{Tag: "a", Role: "menuitem", Href: "/settings"}
	got := suggestSelectors(c)
	assert.Equal(t, []string{`a[role="menuitem"]`, `a[href="/settings"]`}, got)
}

func TestTrimSnippetCollapsesAndCaps(t *testing.T) {
	assert.Equal(t, "a b c", trimSnippet("  a \n b\t c  "))
	long := strings.Repeat("x", 500)
	got := trimSnippet(long)
	assert.Equal(t, textSnippetLimit+len("…"), len(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTrimSnippetKeepsRuneBoundaries(t *testing.T) {
	// A two-byte rune straddling the byte limit must not be split.
	straddling := strings.Repeat("x", textSnippetLimit-1) + "é" + strings.Repeat("x", 50)
	got := trimSnippet(straddling)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", textSnippetLimit-1)+"…", got)

	// Multibyte-only text truncates on a boundary too.
	cyrillic := strings.Repeat("ж", 300)
	got = trimSnippet(cyrillic)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len(got), textSnippetLimit+len("…"))
}

func TestAmbiguityResultListsCandidates(t *testing.T) {
	page := pageWithProbes(t, []candidateProbe{
		{Tag: "button", Text: "Save", ID: "save-btn"},
		{Tag: "button", Text: "Cancel", ID: "cancel-btn"},
	})
	fault := &schemas.AmbiguousMatchError{Selector: "button", Matches: 2}

	result := AmbiguityResult(context.Background(), page, fault)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, schemas.CodeAmbiguous, result.ErrorCode)
	assert.Equal(t, []string{"#save-btn", "#cancel-btn"}, result.Suggestions)

	text := result.Content[0].Text
	assert.Contains(t, text, `matched 2 elements`)
	assert.Contains(t, text, `1. <button>`)
	assert.Contains(t, text, `2. <button>`)
	assert.Contains(t, text, "#save-btn")
}

func TestAmbiguityResultNeverRaises(t *testing.T) {
	page := browsertest.NewFakePage()
	page.EvaluateFunc = func(expression string, out interface{}) error {
		return errors.New("execution context destroyed")
	}
	fault := &schemas.AmbiguousMatchError{Selector: ".btn", Matches: 3}

	result := AmbiguityResult(context.Background(), page, fault)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, schemas.CodeAmbiguous, result.ErrorCode)
	assert.NotEmpty(t, result.Suggestions)
	assert.Contains(t, result.Content[0].Text, "matched 3 elements")
}
