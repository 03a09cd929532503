// internal/browser/discover.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/pagesmith/api/schemas"
)

// This file implements the ambiguity-aware diagnostic layer: when a
// singular-element operation matches several elements, we re-query the
// selector, describe each candidate and derive stronger alternate
// selectors so the caller can disambiguate on its next attempt. The same
// enumeration backs the standalone discover_elements tool.

const (
	// DiscoverLimit caps how many candidates an enumeration describes.
	DiscoverLimit = 10
	// maxSuggestions caps the alternate selectors per candidate.
	maxSuggestions = 3
	// textSnippetLimit bounds the trimmed text carried per candidate.
	textSnippetLimit = 160
)

// candidateProbe mirrors the object shape produced by the in-page script.
type candidateProbe struct {
	Tag       string `json:"tag"`
	Text      string `json:"text"`
	ID        string `json:"id"`
	Class     string `json:"class"`
	TestID    string `json:"testId"`
	AriaLabel string `json:"ariaLabel"`
	Role      string `json:"role"`
	Type      string `json:"type"`
	Href      string `json:"href"`
}

// DescribeMatches enumerates up to limit elements matching selector and
// derives suggested alternates for each. Read-only: it never mutates page
// state.
func DescribeMatches(ctx context.Context, page schemas.Page, selector string, limit int) ([]schemas.ElementCandidate, error) {
	if limit <= 0 || limit > DiscoverLimit {
		limit = DiscoverLimit
	}

	script := fmt.Sprintf(`(() => {
		const out = [];
		const nodes = document.querySelectorAll(%q);
		for (let i = 0; i < nodes.length && i < %d; i++) {
			const el = nodes[i];
			out.push({
				tag: el.tagName.toLowerCase(),
				text: (el.textContent || '').trim(),
				id: el.id || '',
				class: el.getAttribute('class') || '',
				testId: el.getAttribute('data-testid') || '',
				ariaLabel: el.getAttribute('aria-label') || '',
				role: el.getAttribute('role') || '',
				type: el.getAttribute('type') || '',
				href: el.getAttribute('href') || ''
			});
		}
		return out;
	})()`, selector, limit)

	var probes []candidateProbe
	if err := page.Evaluate(ctx, script, &probes); err != nil {
		return nil, fmt.Errorf("failed to enumerate matches for %q: %w", selector, err)
	}

	candidates := make([]schemas.ElementCandidate, 0, len(probes))
	for _, p := range probes {
		candidates = append(candidates, describeCandidate(p))
	}
	return candidates, nil
}

func describeCandidate(p candidateProbe) schemas.ElementCandidate {
	c := schemas.ElementCandidate{
		Tag:       p.Tag,
		Text:      trimSnippet(p.Text),
		ID:        p.ID,
		TestID:    p.TestID,
		AriaLabel: p.AriaLabel,
		Role:      p.Role,
		Type:      p.Type,
		Href:      p.Href,
	}
	if p.Class != "" {
		c.Classes = strings.Fields(p.Class)
	}
	c.SuggestedSelectors = suggestSelectors(c)
	return c
}

func trimSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= textSnippetLimit {
		return s
	}
	// Back the cut off to a rune boundary so the snippet stays valid UTF-8.
	cut := textSnippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// suggestSelectors derives up to three alternates per candidate, strongest
// identifier first: id > test-id > class(es) > aria-label > role > type > href.
func suggestSelectors(c schemas.ElementCandidate) []string {
	var out []string
	add := func(sel string) {
		if len(out) < maxSuggestions {
			out = append(out, sel)
		}
	}

	if c.ID != "" {
		add("#" + c.ID)
	}
	if c.TestID != "" {
		add(fmt.Sprintf(`[data-testid=%q]`, c.TestID))
	}
	if len(c.Classes) > 0 {
		add(c.Tag + "." + strings.Join(c.Classes, "."))
	}
	if c.AriaLabel != "" {
		add(fmt.Sprintf(`[aria-label=%q]`, c.AriaLabel))
	}
	if c.Role != "" {
		add(fmt.Sprintf(`%s[role=%q]`, c.Tag, c.Role))
	}
	if c.Type != "" {
		add(fmt.Sprintf(`%s[type=%q]`, c.Tag, c.Type))
	}
	if c.Href != "" {
		add(fmt.Sprintf(`a[href=%q]`, c.Href))
	}
	return out
}

// AmbiguityResult turns a strict-match fault into a normal, self-correcting
// tool result: failure summary, numbered candidate list and per-candidate
// suggestions. This path must never raise; if the enumeration itself fails
// we still resolve to a descriptive result.
func AmbiguityResult(ctx context.Context, page schemas.Page, fault *schemas.AmbiguousMatchError) *schemas.ToolResult {
	candidates, err := DescribeMatches(ctx, page, fault.Selector, DiscoverLimit)
	if err != nil || len(candidates) == 0 {
		return schemas.ErrorResult(schemas.CodeAmbiguous,
			fmt.Sprintf("Selector %q matched %d elements where exactly one was required.", fault.Selector, fault.Matches),
			"narrow the selector (add an #id, [data-testid=...] or class)",
			fmt.Sprintf("call discover_elements with selector %q to enumerate the matches", fault.Selector))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Selector %q matched %d elements where exactly one was required. Candidates:\n",
		fault.Selector, fault.Matches)
	writeCandidateList(&sb, candidates)
	sb.WriteString("\nRetry with one of the suggested selectors above.")

	result := schemas.ErrorResult(schemas.CodeAmbiguous, sb.String())
	for _, c := range candidates {
		if len(c.SuggestedSelectors) > 0 {
			result.Suggestions = append(result.Suggestions, c.SuggestedSelectors[0])
		}
	}
	return result
}

// writeCandidateList renders a numbered, human-readable candidate listing.
func writeCandidateList(sb *strings.Builder, candidates []schemas.ElementCandidate) {
	for i, c := range candidates {
		fmt.Fprintf(sb, "%d. <%s>", i+1, c.Tag)
		if c.ID != "" {
			fmt.Fprintf(sb, " id=%q", c.ID)
		}
		if len(c.Classes) > 0 {
			fmt.Fprintf(sb, " class=%q", strings.Join(c.Classes, " "))
		}
		if c.TestID != "" {
			fmt.Fprintf(sb, " data-testid=%q", c.TestID)
		}
		if c.AriaLabel != "" {
			fmt.Fprintf(sb, " aria-label=%q", c.AriaLabel)
		}
		if c.Role != "" {
			fmt.Fprintf(sb, " role=%q", c.Role)
		}
		if c.Type != "" {
			fmt.Fprintf(sb, " type=%q", c.Type)
		}
		if c.Href != "" {
			fmt.Fprintf(sb, " href=%q", c.Href)
		}
		if c.Text != "" {
			fmt.Fprintf(sb, " text=%q", c.Text)
		}
		if len(c.SuggestedSelectors) > 0 {
			fmt.Fprintf(sb, "\n   suggested: %s", strings.Join(c.SuggestedSelectors, ", "))
		}
		sb.WriteString("\n")
	}
}
