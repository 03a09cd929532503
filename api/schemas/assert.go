package schemas

// -- Assertion Template Schemas --

// AssertionKind enumerates the declarative condition types.
type AssertionKind string

const (
	AssertPageTitle  AssertionKind = "page_title"
	AssertPageURL    AssertionKind = "page_url"
	AssertVisible    AssertionKind = "visible"
	AssertAttached   AssertionKind = "attached"
	AssertHidden     AssertionKind = "hidden"
	AssertDetached   AssertionKind = "detached"
	AssertText       AssertionKind = "text"
	AssertAttribute  AssertionKind = "attribute"
	AssertCount      AssertionKind = "count"
	AssertCSS        AssertionKind = "css"
	AssertValue      AssertionKind = "value"
	AssertChecked    AssertionKind = "checked"
	AssertEnabled    AssertionKind = "enabled"
	AssertInViewport AssertionKind = "in_viewport"
)

// Comparator names the comparison modes. String kinds accept
// exact/contains/pattern; count accepts equals/gt/gte/lt/lte.
type Comparator string

const (
	CompareExact    Comparator = "exact"
	CompareContains Comparator = "contains"
	ComparePattern  Comparator = "pattern"
	CompareEquals   Comparator = "equals"
	CompareGT       Comparator = "gt"
	CompareGTE      Comparator = "gte"
	CompareLT       Comparator = "lt"
	CompareLTE      Comparator = "lte"
)

// NavigationDirective is the optional one-shot navigation evaluated before
// the condition list.
type NavigationDirective struct {
	URL       string `json:"url"`
	WaitUntil string `json:"wait_until,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// AssertionCondition is one declarative condition. Which fields are
// required depends on the kind; a condition missing a required field is
// recorded as a failed result, not rejected up front.
type AssertionCondition struct {
	Type     AssertionKind `json:"type"`
	Selector string        `json:"selector,omitempty"`
	// Attribute names the attribute (attribute kind) or the computed style
	// property (css kind).
	Attribute string `json:"attribute,omitempty"`
	// Expected carries the expected value: string for text-like kinds,
	// number for count, boolean for checked/enabled.
	Expected interface{} `json:"expected,omitempty"`
	// Pattern is a regular expression, either raw or in /body/flags form.
	Pattern    string     `json:"pattern,omitempty"`
	Comparator Comparator `json:"comparator,omitempty"`
	// TimeoutMs bounds this condition's polling independently. Zero means
	// the evaluator default (5000 ms).
	TimeoutMs int `json:"timeout_ms,omitempty"`
	// MinRatio is the viewport overlap threshold for in_viewport.
	MinRatio float64 `json:"min_ratio,omitempty"`
}

// AssertionTemplate is the input of the assert_template tool.
type AssertionTemplate struct {
	Navigate   *NavigationDirective `json:"navigate,omitempty"`
	Assertions []AssertionCondition `json:"assertions"`
}

// AssertionResult reports one evaluated condition.
type AssertionResult struct {
	Index    int           `json:"index"`
	Type     AssertionKind `json:"type"`
	Selector string        `json:"selector,omitempty"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message"`
	Details  string        `json:"details,omitempty"`
}

// AssertionSummary aggregates a full template evaluation. Every condition
// is represented in Results regardless of earlier failures.
type AssertionSummary struct {
	Total   int               `json:"total"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Results []AssertionResult `json:"results"`
}
