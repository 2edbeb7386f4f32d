// File: internal/orchestrator/orchestrator.go
//
// Package orchestrator sequences repeated visits. It owns the view loop,
// applies the session reuse policy, and runs the per-view pipeline of
// navigation, consent handling, playback (or dwell with interaction), and
// teardown. It is injected with its collaborators via interfaces, making it
// decoupled and testable.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
	"github.com/xkilldash9x/revisit-cli/internal/consent"
	"github.com/xkilldash9x/revisit-cli/internal/playback"
)

// Session is the full capability surface the orchestrator drives. The live
// implementation is a browser tab; tests substitute fakes.
type Session interface {
	consent.Page
	playback.Page

	ID() string
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	WaitDocumentReady(ctx context.Context, timeout time.Duration) bool
	Close(ctx context.Context) error
}

// SessionFactory creates sessions on demand. In reuse mode it is called once;
// in isolated mode once per view.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to the SessionFactory interface.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

func (f SessionFactoryFunc) NewSession(ctx context.Context) (Session, error) { return f(ctx) }

// ConsentDismisser accepts consent overlays if any are present.
type ConsentDismisser interface {
	Dismiss(ctx context.Context, page consent.Page) consent.Outcome
}

// Watcher blocks until one viewing of the page's media is finished.
type Watcher interface {
	Watch(ctx context.Context, page playback.Page) playback.Outcome
}

// Orchestrator runs the repeated-visit loop described by the visit config.
type Orchestrator struct {
	cfg     *config.Config
	logger  *zap.Logger
	factory SessionFactory
	consent ConsentDismisser
	starter playback.Restarter
	monitor Watcher

	sleep func(ctx context.Context, d time.Duration) error
}

// New wires the orchestrator to its collaborators.
func New(cfg *config.Config, factory SessionFactory, dismisser ConsentDismisser, starter playback.Restarter, monitor Watcher, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil || factory == nil || dismisser == nil || starter == nil || monitor == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger.Named("orchestrator"),
		factory: factory,
		consent: dismisser,
		starter: starter,
		monitor: monitor,
		sleep:   sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes every requested view. It returns the per-view summary and the
// first fatal error, if any. Views already completed stay in the summary even
// when a later view fails.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	visit := o.cfg.Visit
	summary := &Summary{
		URL:       visit.URL,
		Views:     visit.Views,
		Mode:      visit.Mode,
		Reused:    visit.Reuse,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		summary.ElapsedSeconds = time.Since(summary.StartedAt).Seconds()
	}()

	var shared Session
	if visit.Reuse {
		var err error
		shared, err = o.factory.NewSession(ctx)
		if err != nil {
			return summary, fmt.Errorf("session creation failed: %w", err)
		}
		defer shared.Close(context.Background())
	}

	for view := 1; view <= visit.Views; view++ {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		o.logger.Info("Starting view.", zap.Int("view", view), zap.Int("total", visit.Views))

		session := shared
		if !visit.Reuse {
			var err error
			session, err = o.factory.NewSession(ctx)
			if err != nil {
				return summary, fmt.Errorf("session creation for view %d failed: %w", view, err)
			}
		}

		result, err := o.runView(ctx, session, view)
		if !visit.Reuse {
			// Isolated views tear their session down even when the view failed.
			session.Close(context.Background())
		}
		if err != nil {
			return summary, err
		}

		summary.Results = append(summary.Results, result)
		summary.Completed++
		o.logger.Info("View finished.",
			zap.Int("view", view),
			zap.String("outcome", result.Outcome),
			zap.Float64("duration_s", result.DurationSeconds))
	}

	return summary, nil
}

// runView drives one complete view against the given session.
func (o *Orchestrator) runView(ctx context.Context, session Session, view int) (ViewResult, error) {
	started := time.Now()
	result := ViewResult{View: view}

	if err := o.loadPage(ctx, session, view); err != nil {
		return result, err
	}

	// Some overlays render only after the load settles.
	if wait := o.cfg.Network.PostLoadWait; wait > 0 {
		if err := o.sleep(ctx, wait); err != nil {
			return result, err
		}
	}

	result.Consent = o.consent.Dismiss(ctx, session).String()

	if o.cfg.Visit.WatchUntilEnd {
		o.starter.Start(ctx, session)
		outcome := o.monitor.Watch(ctx, session)
		result.Outcome = outcome.String()
		if outcome == playback.OutcomeCanceled && ctx.Err() != nil {
			return result, ctx.Err()
		}
	} else {
		if err := o.interact(ctx, session); err != nil {
			return result, err
		}
		if err := o.sleep(ctx, o.cfg.Visit.Dwell); err != nil {
			return result, err
		}
		result.Outcome = "dwell"
	}

	// Redirects may have moved the page; record where the view ended up.
	if url, err := session.CurrentURL(ctx); err == nil {
		result.FinalURL = url
	}

	result.DurationSeconds = time.Since(started).Seconds()
	return result, nil
}

// loadPage brings the session to the target URL. In reuse mode with reloads
// enabled, later views refresh in place instead of re-navigating.
func (o *Orchestrator) loadPage(ctx context.Context, session Session, view int) error {
	visit := o.cfg.Visit
	if visit.Reuse && visit.ReloadBetweenViews && view > 1 {
		if err := session.Reload(ctx); err != nil {
			return err
		}
	} else {
		if err := session.Navigate(ctx, visit.URL); err != nil {
			return err
		}
	}

	readyTimeout := o.cfg.Network.DocumentReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 20 * time.Second
	}
	if !session.WaitDocumentReady(ctx, readyTimeout) {
		// Heavy pages often never reach readyState complete; proceed anyway.
		o.logger.Debug("Document did not settle within the ready timeout.", zap.Int("view", view))
	}
	return ctx.Err()
}

// interact performs the optional per-view page interaction.
func (o *Orchestrator) interact(ctx context.Context, session Session) error {
	switch o.cfg.Visit.Interaction {
	case "", "none":
		return nil
	case "space":
		if err := session.SendKeysToBody(ctx, " "); err != nil {
			o.logger.Debug("Space interaction failed.", zap.Error(err))
		}
	case "scroll":
		o.scrollInteraction(ctx, session)
	case "click":
		o.clickInteraction(ctx, session)
	default:
		return fmt.Errorf("unknown interaction %q", o.cfg.Visit.Interaction)
	}
	return ctx.Err()
}

const scrollStepPause = 400 * time.Millisecond

// scrollInteraction nudges the page: two half-viewport scrolls down, then one
// back up, with a short pause between each step so the movement reads as
// activity rather than a single jump.
func (o *Orchestrator) scrollInteraction(ctx context.Context, session Session) {
	steps := []string{scrollDownScript, scrollDownScript, scrollUpScript}
	for i, js := range steps {
		if err := session.Evaluate(ctx, js, nil); err != nil {
			o.logger.Debug("Scroll step failed.", zap.Error(err))
		}
		if i < len(steps)-1 {
			if err := o.sleep(ctx, scrollStepPause); err != nil {
				return
			}
		}
	}
}

// clickInteraction clicks the explicit selector if one was given, otherwise
// walks the play-button table. Generic anchors are deliberately not part of
// the fallback: following a link would carry the rest of the run to a
// different page. When nothing is clickable, a spacebar toggle is the least
// disruptive remaining gesture.
func (o *Orchestrator) clickInteraction(ctx context.Context, session Session) {
	selectors := o.cfg.Playback.PlayButtonSelectors
	if s := o.cfg.Visit.ClickSelector; s != "" {
		selectors = []string{s}
	}
	for _, selector := range selectors {
		if err := session.ClickSelector(ctx, selector, o.cfg.Playback.ClickTargetTimeout); err == nil {
			o.logger.Debug("Click interaction succeeded.", zap.String("selector", selector))
			return
		}
	}
	o.logger.Debug("No clickable target, sending space instead.")
	if err := session.SendKeysToBody(ctx, " "); err != nil {
		o.logger.Debug("Space fallback failed.", zap.Error(err))
	}
}

const scrollDownScript = `window.scrollBy({ top: window.innerHeight / 2, behavior: 'smooth' })`
const scrollUpScript = `window.scrollBy({ top: -window.innerHeight / 2, behavior: 'smooth' })`
