// File: internal/playback/artifacts.go
package playback

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

const stallTimestampLayout = "20060102T150405Z"

// ArtifactWriter dumps stall diagnostics (a screenshot and the page source)
// into the artifacts directory. Every failure is swallowed: diagnostics must
// never disturb the monitor.
type ArtifactWriter struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewArtifactWriter creates a writer rooted at the configured directory.
func NewArtifactWriter(cfg config.ArtifactsConfig, logger *zap.Logger) *ArtifactWriter {
	return &ArtifactWriter{
		dir:    cfg.Dir,
		logger: logger.Named("artifacts"),
		now:    time.Now,
	}
}

var _ ArtifactSink = (*ArtifactWriter)(nil)

// CaptureStall writes ci-stuck-<UTC>.png and ci-stuck-<UTC>.html, best-effort.
func (w *ArtifactWriter) CaptureStall(ctx context.Context, page Page) {
	stamp := w.now().UTC().Format(stallTimestampLayout)
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.Debug("Could not create artifacts directory.", zap.Error(err))
		return
	}

	if png, err := page.Screenshot(ctx); err == nil {
		path := filepath.Join(w.dir, "ci-stuck-"+stamp+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			w.logger.Debug("Screenshot write failed.", zap.Error(err))
		} else {
			w.logger.Info("Stall screenshot captured.", zap.String("path", path))
		}
	} else {
		w.logger.Debug("Screenshot capture failed.", zap.Error(err))
	}

	if html, err := page.PageSource(ctx); err == nil {
		path := filepath.Join(w.dir, "ci-stuck-"+stamp+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			w.logger.Debug("Page source write failed.", zap.Error(err))
		}
	} else {
		w.logger.Debug("Page source capture failed.", zap.Error(err))
	}
}
