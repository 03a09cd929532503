package schemas

import (
	"errors"
	"fmt"
)

// Code classifies every failure a tool invocation can produce.
type Code string

const (
	// CodeNotFound: the tool name is not registered.
	CodeNotFound Code = "not_found"
	// CodeInvalidArguments: the arguments failed the tool's schema.
	CodeInvalidArguments Code = "invalid_arguments"
	// CodeAmbiguous: a selector requiring exactly one match resolved to more.
	CodeAmbiguous Code = "ambiguous"
	// CodeElementNotFound: a selector resolved to zero matches.
	CodeElementNotFound Code = "element_not_found"
	// CodeUnavailable: the browser session could not be established.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout: a bounded wait or poll exceeded its budget.
	CodeTimeout Code = "timeout"
	// CodeOversizedArtifact: no acceptable size reduction was found.
	CodeOversizedArtifact Code = "oversized_artifact"
	// CodeInternal: an uncaught handler fault.
	CodeInternal Code = "internal"
)

// Recoverable reports whether a code is resolved locally into a structured
// result rather than propagated as a hard failure.
func (c Code) Recoverable() bool {
	switch c {
	case CodeNotFound, CodeInvalidArguments, CodeAmbiguous, CodeElementNotFound, CodeOversizedArtifact:
		return true
	}
	return false
}

// ToolError is the typed error carried through the dispatcher. The Message
// is user-facing; Suggestions name concrete remediation steps. Raw stack
// traces never belong in Message.
type ToolError struct {
	Code        Code
	Message     string
	Suggestions []string
	Err         error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError constructs a ToolError without an underlying cause.
func NewToolError(code Code, message string, suggestions ...string) *ToolError {
	return &ToolError{Code: code, Message: message, Suggestions: suggestions}
}

// WrapToolError attaches an underlying cause for diagnostics.
func WrapToolError(code Code, err error, message string, suggestions ...string) *ToolError {
	return &ToolError{Code: code, Message: message, Suggestions: suggestions, Err: err}
}

// AsToolError extracts a *ToolError from an error chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// AmbiguousMatchError is the strict-match fault raised by the provider
// adapter when an operation requiring exactly one element resolved to more.
type AmbiguousMatchError struct {
	Selector string
	Matches  int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("selector %q matched %d elements, expected exactly one", e.Selector, e.Matches)
}

// IsAmbiguousMatch reports whether err carries a strict-match fault.
func IsAmbiguousMatch(err error) (*AmbiguousMatchError, bool) {
	var ae *AmbiguousMatchError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
