// File: internal/orchestrator/summary.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ViewResult records what happened during one view.
type ViewResult struct {
	View            int     `json:"view"`
	Consent         string  `json:"consent"`
	Outcome         string  `json:"outcome"`
	FinalURL        string  `json:"final_url,omitempty"`
	DurationSeconds float64 `json:"duration_s"`
}

// Summary aggregates a whole run. It is written as JSON when a summary path
// is configured.
type Summary struct {
	URL            string       `json:"url"`
	Views          int          `json:"views"`
	Completed      int          `json:"completed"`
	Mode           string       `json:"mode"`
	Reused         bool         `json:"reused_session"`
	StartedAt      time.Time    `json:"started_at"`
	ElapsedSeconds float64      `json:"elapsed_s"`
	Results        []ViewResult `json:"results"`
}

// WriteFile serializes the summary to the given path, creating parent
// directories as needed.
func (s *Summary) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("summary serialization failed: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("summary directory creation failed: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("summary write failed: %w", err)
	}
	return nil
}
