// File: internal/playback/artifacts_test.go
package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

type artifactPage struct {
	monitorPage
	screenshotErr error
	sourceErr     error
}

func (p *artifactPage) Screenshot(context.Context) ([]byte, error) {
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return []byte("fake-png"), nil
}

func (p *artifactPage) PageSource(context.Context) (string, error) {
	if p.sourceErr != nil {
		return "", p.sourceErr
	}
	return "<html><body>stuck</body></html>", nil
}

func TestCaptureStallWritesBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(config.ArtifactsConfig{Dir: dir}, zap.NewNop())
	w.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

	w.CaptureStall(context.Background(), &artifactPage{})

	png, err := os.ReadFile(filepath.Join(dir, "ci-stuck-20250601T093000Z.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-png"), png)

	html, err := os.ReadFile(filepath.Join(dir, "ci-stuck-20250601T093000Z.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "stuck")
}

func TestCaptureStallSwallowsCaptureFailures(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(config.ArtifactsConfig{Dir: dir}, zap.NewNop())

	page := &artifactPage{
		screenshotErr: errors.New("target crashed"),
		sourceErr:     errors.New("target crashed"),
	}
	// Must not panic and must not write anything.
	w.CaptureStall(context.Background(), page)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureStallWritesSourceWhenScreenshotFails(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(config.ArtifactsConfig{Dir: dir}, zap.NewNop())
	w.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

	w.CaptureStall(context.Background(), &artifactPage{screenshotErr: errors.New("no surface")})

	_, err := os.Stat(filepath.Join(dir, "ci-stuck-20250601T093000Z.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "ci-stuck-20250601T093000Z.html"))
	assert.NoError(t, err)
}
