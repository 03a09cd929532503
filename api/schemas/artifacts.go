package schemas

// ScreenshotArtifact is the outcome of a managed capture: either an inline
// base64 payload or a reference to a file persisted in the artifacts
// directory. Exactly one of Data / Path is set.
type ScreenshotArtifact struct {
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
	// Quality is the lossy quality the returned capture was taken at,
	// zero for a lossless capture.
	Quality int    `json:"quality,omitempty"`
	Path    string `json:"path,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Inline reports whether the artifact carries its bytes in the payload.
func (a *ScreenshotArtifact) Inline() bool { return a.Data != "" }
