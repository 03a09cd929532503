package schemas

import "time"

// -- Session Status Schemas --

// SessionStatus is a point-in-time snapshot of the shared browser session,
// reported by the browser_health tool.
type SessionStatus struct {
	// Available is false only after launch retries were exhausted.
	Available bool `json:"available"`
	// Active reports whether a live browser handle is currently held.
	Active     bool      `json:"active"`
	Connected  bool      `json:"connected"`
	LaunchedAt time.Time `json:"launched_at,omitempty"`
	AgeSeconds float64   `json:"age_seconds"`
	RetryCount int       `json:"retry_count"`
	CurrentURL string    `json:"current_url,omitempty"`
}

// -- Element Discovery Schemas --

// ElementCandidate describes one of several elements matching an ambiguous
// selector. It is transient: produced during ambiguity handling or explicit
// discovery, never persisted.
type ElementCandidate struct {
	Tag       string   `json:"tag"`
	Text      string   `json:"text,omitempty"`
	ID        string   `json:"id,omitempty"`
	Classes   []string `json:"classes,omitempty"`
	TestID    string   `json:"test_id,omitempty"`
	AriaLabel string   `json:"aria_label,omitempty"`
	Role      string   `json:"role,omitempty"`
	Type      string   `json:"type,omitempty"`
	Href      string   `json:"href,omitempty"`
	// SuggestedSelectors holds up to three alternates, strongest first.
	SuggestedSelectors []string `json:"suggested_selectors,omitempty"`
}
