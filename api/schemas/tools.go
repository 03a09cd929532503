package schemas

// -- Tool Descriptor Schemas --

// PropertySpec describes a single parameter of a tool. The shape mirrors a
// JSON Schema property so the descriptor can be handed to callers verbatim.
type PropertySpec struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// ParameterSchema is the argument contract of a tool. It is the single
// source of truth for both validation and introspection.
type ParameterSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]PropertySpec `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

// ObjectSchema builds the standard object-typed parameter schema.
func ObjectSchema(props map[string]PropertySpec, required ...string) ParameterSchema {
	return ParameterSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// ToolDescriptor pairs a tool name with its documentation and argument
// contract. The registry derives the introspection listing from these.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// -- Tool Result Schemas --

// ContentKind discriminates the parts of a ToolResult.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// ContentPart is one element of a tool result: either plain text or an
// inline image carried as a base64 payload with its mime type.
type ContentPart struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Data     string      `json:"data,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
}

// ToolResult is the normalized envelope every tool invocation resolves to.
// Locally recovered faults (ambiguous selector, oversized screenshot, bad
// arguments) are reported here with IsError set and an ErrorCode, so the
// caller can self-correct without treating the call as a hard failure.
type ToolResult struct {
	Content   []ContentPart `json:"content"`
	IsError   bool          `json:"is_error,omitempty"`
	ErrorCode Code          `json:"error_code,omitempty"`
	// Suggestions carries concrete follow-up actions for recovered faults.
	Suggestions []string `json:"suggestions,omitempty"`
}

// TextResult builds a single-part text result.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []ContentPart{{Kind: ContentText, Text: text}}}
}

// ImageResult builds a single-part inline image result.
func ImageResult(data, mimeType string) *ToolResult {
	return &ToolResult{Content: []ContentPart{{Kind: ContentImage, Data: data, MimeType: mimeType}}}
}

// ErrorResult builds a recovered-fault result carrying the taxonomy code
// and at least the suggestions the caller needs to self-correct.
func ErrorResult(code Code, message string, suggestions ...string) *ToolResult {
	return &ToolResult{
		Content:     []ContentPart{{Kind: ContentText, Text: message}},
		IsError:     true,
		ErrorCode:   code,
		Suggestions: suggestions,
	}
}
