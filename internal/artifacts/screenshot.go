// internal/artifacts/screenshot.go

// Package artifacts sizes and stores screenshot output. Captures that fit
// the inline budget are returned as-is; oversized ones are re-captured
// down a JPEG quality ladder, and a capture that stays over budget at the
// ladder's floor is written to disk and referenced by URL instead of ever
// being inlined.
package artifacts

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/config"
)

// CaptureFunc captures one screenshot with the given options. The manager
// drives format and quality through it; callers bake in the page handle.
type CaptureFunc func(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error)

// Manager applies the size policy to screenshot captures.
type Manager struct {
	logger *zap.Logger
	cfg    config.ScreenshotConfig

	now func() time.Time
}

// NewManager creates the screenshot size manager. The artifact directory
// is created lazily on the first disk spill.
func NewManager(cfg config.ScreenshotConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("screenshots"),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Policy is the per-capture size policy. The zero value means "use the
// configured budget, compress, and persist when still over".
type Policy struct {
	// MaxSizeBytes overrides the configured inline budget when positive.
	MaxSizeBytes int
	// NoCompress skips the quality ladder.
	NoCompress bool
	// NoPersist turns the disk spill into an over-budget refusal.
	NoPersist bool
}

func (m *Manager) budget(p Policy) int {
	if p.MaxSizeBytes > 0 {
		return p.MaxSizeBytes
	}
	return m.cfg.MaxSizeBytes
}

// Process captures a screenshot under the inline size budget. The first
// capture is lossless PNG; if it exceeds the budget the capture is redone
// as JPEG down the configured quality ladder until one fits. A capture
// still over budget at the ladder's lowest rung is persisted to disk and
// returned by reference, or refused when the policy forbids persisting.
// Oversized bytes are never returned inline either way.
func (m *Manager) Process(ctx context.Context, capture CaptureFunc, base schemas.ScreenshotOptions, policy Policy) (*schemas.ScreenshotArtifact, error) {
	budget := m.budget(policy)
	opts := base
	opts.Format = schemas.FormatPNG
	opts.Quality = 0

	data, err := capture(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	if len(data) <= budget {
		return &schemas.ScreenshotArtifact{
			Data:     base64.StdEncoding.EncodeToString(data),
			MimeType: schemas.FormatPNG.MimeType(),
			Size:     len(data),
		}, nil
	}

	lastQuality := 0
	if !policy.NoCompress {
		m.logger.Debug("Screenshot over inline budget; walking quality ladder.",
			zap.Int("size", len(data)), zap.Int("budget", budget))
		for _, quality := range m.cfg.QualityLadder {
			opts.Format = schemas.FormatJPEG
			opts.Quality = quality
			data, err = capture(ctx, opts)
			if err != nil {
				return nil, fmt.Errorf("screenshot re-capture at quality %d failed: %w", quality, err)
			}
			lastQuality = quality
			if len(data) <= budget {
				return &schemas.ScreenshotArtifact{
					Data:     base64.StdEncoding.EncodeToString(data),
					MimeType: schemas.FormatJPEG.MimeType(),
					Size:     len(data),
					Quality:  quality,
				}, nil
			}
		}
	}

	if policy.NoPersist {
		return nil, schemas.NewToolError(schemas.CodeOversizedArtifact,
			fmt.Sprintf("screenshot is %d bytes, over the %d byte budget, and persisting was declined",
				len(data), budget),
			"allow persisting so the capture can be returned by URL",
			"raise the size budget or capture the viewport instead of the full page")
	}
	return m.persist(data, lastQuality, budget)
}

// persist writes an over-budget capture to the artifact directory and
// returns a by-reference artifact. The inline payload is never attached
// above the budget; failing to spill is itself reported as an oversized
// artifact condition so the caller resolves it into a tool result.
func (m *Manager) persist(data []byte, quality, budget int) (*schemas.ScreenshotArtifact, error) {
	mimeType := schemas.FormatJPEG.MimeType()
	ext := "jpeg"
	if quality == 0 {
		// Ladder was empty; the PNG capture is all we have.
		mimeType = schemas.FormatPNG.MimeType()
		ext = "png"
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeOversizedArtifact, err,
			fmt.Sprintf("screenshot is %d bytes (budget %d) and the artifact directory could not be created",
				len(data), budget),
			"capture a region instead of the full page",
			"raise the configured screenshot size budget")
	}

	name := fmt.Sprintf("screenshot-%s-%s.%s",
		m.now().UTC().Format("20060102-150405"), shortID(), ext)
	path := filepath.Join(m.cfg.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeOversizedArtifact, err,
			fmt.Sprintf("screenshot is %d bytes (budget %d) and could not be written to disk",
				len(data), budget),
			"capture a region instead of the full page",
			"raise the configured screenshot size budget")
	}

	m.logger.Info("Persisted over-budget screenshot.",
		zap.String("path", path), zap.Int("size", len(data)), zap.Int("quality", quality))

	return &schemas.ScreenshotArtifact{
		MimeType: mimeType,
		Size:     len(data),
		Quality:  quality,
		Path:     path,
		URL:      strings.TrimSuffix(m.cfg.BaseURL, "/") + "/" + name,
	}, nil
}

func shortID() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}
