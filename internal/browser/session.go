// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

// Session represents one live browser tab under automation control. It is the
// concrete implementation of the capability surfaces consumed by the consent,
// playback and orchestrator packages.
//
// A Session has a single owner at a time; it is never polled concurrently.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

func newSession(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:     sessionID,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("session").With(zap.String("session_id", sessionID)),
		cfg:    cfg,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// runActions executes chromedp actions, respecting both the session lifetime
// and the incoming call context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the given URL. Navigation failures are session-level faults
// and surface as DriverErrors.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return &DriverError{Op: "navigate", Err: fmt.Errorf("timed out after %s: %w", navTimeout, err)}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &DriverError{Op: "navigate", Err: err}
	}
	return nil
}

// Reload refreshes the current page.
func (s *Session) Reload(ctx context.Context) error {
	s.logger.Debug("Reloading page.")
	if err := s.runActions(ctx, chromedp.Reload()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &DriverError{Op: "reload", Err: err}
	}
	return nil
}

// WaitDocumentReady polls document.readyState until it reports "complete" or
// the timeout elapses. The result is advisory; a false return is not an error.
func (s *Session) WaitDocumentReady(ctx context.Context, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		var state string
		if err := s.Evaluate(waitCtx, `document.readyState`, &state); err == nil && state == "complete" {
			return true
		}
		select {
		case <-waitCtx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Evaluate runs a JavaScript snippet in the current document and optionally
// unmarshals the result into out. A script throw comes back as an error; the
// callers treat that as "this probe yielded no information".
func (s *Session) Evaluate(ctx context.Context, js string, out any) error {
	return s.runActions(ctx, chromedp.Evaluate(js, out))
}

// ClickSelector scrolls the first match into view and clicks it, bounded by
// the per-target timeout.
func (s *Session) ClickSelector(ctx context.Context, selector string, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.runActions(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click failed for selector %q: %w", selector, err)
	}
	return nil
}

// SendKeysToBody sends raw key input to the document body. Used for the
// keyboard play-toggle fallback and the "space" interaction.
func (s *Session) SendKeysToBody(ctx context.Context, keys string) error {
	if err := s.runActions(ctx, chromedp.SendKeys("body", keys, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("send keys failed: %w", err)
	}
	return nil
}

// DispatchMouseClick synthesizes a full mousedown/mouseup sequence at the
// given viewport coordinates. This is the closest available equivalent of a
// trusted user gesture.
func (s *Session) DispatchMouseClick(ctx context.Context, x, y float64) error {
	err := s.runActions(ctx,
		chromedp.MouseEvent(input.MouseMoved, x, y),
		chromedp.MouseEvent(input.MousePressed, x, y, chromedp.Button("left"), chromedp.ClickCount(1)),
		chromedp.MouseEvent(input.MouseReleased, x, y, chromedp.Button("left"), chromedp.ClickCount(1)),
	)
	if err != nil {
		return fmt.Errorf("mouse click dispatch failed at (%.0f, %.0f): %w", x, y, err)
	}
	return nil
}

// Screenshot captures the visible viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.runActions(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// PageSource returns the serialized outer HTML of the current document.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page source capture failed: %w", err)
	}
	return html, nil
}

// CurrentURL returns the URL of the active document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("location lookup failed: %w", err)
	}
	return url, nil
}

// Close terminates the session. It is idempotent and never returns an error;
// session cleanup must not disturb the orchestrator's control flow.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
