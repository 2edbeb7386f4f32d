// File: internal/playback/starter.go
package playback

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

// Restarter is the monitor's view of the starter: something that can try to
// (re)induce playback and report whether it is now confirmed playing.
type Restarter interface {
	Start(ctx context.Context, page Page) bool
}

// Starter attempts to put a media element into a playing state using script
// injection, synthetic input, and a keyboard fallback. It never pauses an
// element that is already playing; repeated calls on a healthy page are
// no-ops.
type Starter struct {
	cfg    config.PlaybackConfig
	logger *zap.Logger

	playScript    string
	playingScript string
}

// NewStarter builds a Starter from the playback config.
func NewStarter(cfg config.PlaybackConfig, logger *zap.Logger) *Starter {
	return &Starter{
		cfg:           cfg,
		logger:        logger.Named("starter"),
		playScript:    buildPlayScript(),
		playingScript: buildPlayingScript(cfg.ZeroProgressEpsilon),
	}
}

var _ Restarter = (*Starter)(nil)

// Start runs the escalation ladder once. Every step is conditional on the
// previous not having already succeeded, and no step is retried within one
// call; re-invocation is the monitor's job. The return value reports whether
// playback was confirmed.
func (s *Starter) Start(ctx context.Context, page Page) bool {
	shortForm := s.classifyShortForm(ctx, page)

	// Muted script-level play. Autoplay policies generally allow muted
	// playback, and a rejected play() promise is swallowed in the script.
	if err := page.Evaluate(ctx, s.playScript, nil); err != nil {
		s.logger.Debug("Script play attempt failed.", zap.Error(err))
	}

	if s.isPlaying(ctx, page) {
		return true
	}

	if shortForm {
		// Short-form players want a user-gesture-like click on the surface.
		for _, selector := range s.cfg.PlayButtonSelectors {
			if err := page.ClickSelector(ctx, selector, s.cfg.ClickTargetTimeout); err == nil {
				s.logger.Debug("Clicked play target.", zap.String("selector", selector))
				break
			}
		}
		if s.isPlaying(ctx, page) {
			return true
		}

		s.clickMediaCenter(ctx, page)
		if err := page.Evaluate(ctx, s.playScript, nil); err != nil {
			s.logger.Debug("Post-gesture script play failed.", zap.Error(err))
		}
		if s.isPlaying(ctx, page) {
			return true
		}
	}

	// Keyboard toggle as the last resort on any page type.
	if err := page.SendKeysToBody(ctx, "k"); err != nil {
		s.logger.Debug("Keyboard play toggle failed.", zap.Error(err))
	}
	return s.isPlaying(ctx, page)
}

// classifyShortForm decides whether the page hosts looping short-form content
// by URL path pattern or DOM landmark.
func (s *Starter) classifyShortForm(ctx context.Context, page Page) bool {
	if url, err := page.CurrentURL(ctx); err == nil {
		lowered := strings.ToLower(url)
		for _, pattern := range s.cfg.ShortFormPatterns {
			if strings.Contains(lowered, pattern) {
				return true
			}
		}
	}
	var landmark bool
	if err := page.Evaluate(ctx, shortFormLandmarkScript, &landmark); err == nil && landmark {
		return true
	}
	return false
}

// isPlaying reports whether any media element has measurably advanced and is
// not paused.
func (s *Starter) isPlaying(ctx context.Context, page Page) bool {
	var playing bool
	if err := page.Evaluate(ctx, s.playingScript, &playing); err != nil {
		return false
	}
	return playing
}

// clickMediaCenter synthesizes mouse input at the center of the first media
// element's bounding box.
func (s *Starter) clickMediaCenter(ctx context.Context, page Page) {
	var box struct {
		Found bool    `json:"found"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := page.Evaluate(ctx, mediaCenterScript, &box); err != nil || !box.Found {
		return
	}
	if err := page.DispatchMouseClick(ctx, box.X, box.Y); err != nil {
		s.logger.Debug("Synthetic gesture failed.", zap.Error(err))
	}
}

const shortFormLandmarkScript = `(() => {
	return !!document.querySelector('ytd-reel-video-renderer, #shorts-player, [data-e2e="feed-video"]');
})()`

const mediaCenterScript = `(() => {
	const v = document.querySelector('video');
	if (!v) return { found: false, x: 0, y: 0 };
	const r = v.getBoundingClientRect();
	return { found: true, x: r.left + r.width / 2, y: r.top + r.height / 2 };
})()`

func buildPlayScript() string {
	return `(() => {
		const vids = Array.from(document.querySelectorAll('video, audio'));
		for (const v of vids) {
			try { v.muted = true; v.play().catch(() => {}); } catch (e) {}
		}
		return vids.length;
	})()`
}

func buildPlayingScript(epsilon float64) string {
	return fmt.Sprintf(`(() => {
		const vids = Array.from(document.querySelectorAll('video, audio'));
		return vids.some(v => v.currentTime > %g && !v.paused);
	})()`, epsilon)
}
