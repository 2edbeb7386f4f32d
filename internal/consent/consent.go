// File: internal/consent/consent.go
//
// Package consent locates and clicks "accept/agree" controls on consent
// overlays, including those rendered inside dedicated consent iframes.
// Absence of a consent dialog is a normal outcome, not an error.
package consent

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/revisit-cli/internal/browser"
	"github.com/xkilldash9x/revisit-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page is the capability surface the dismisser needs from a browser session.
type Page interface {
	Evaluate(ctx context.Context, js string, out any) error
	ClickSelector(ctx context.Context, selector string, timeout time.Duration) error
	ConsentFrames(ctx context.Context, keywords []string) ([]browser.Frame, error)
	WithFrame(ctx context.Context, frame browser.Frame, fn func(browser.FrameScope) error) error
}

// AttemptResult is the outcome of probing a single document context.
type AttemptResult int

const (
	// AttemptNotFound means the context was scanned cleanly and held no
	// acceptance control.
	AttemptNotFound AttemptResult = iota
	// AttemptClicked means an acceptance control was found and clicked.
	AttemptClicked
	// AttemptContextError means the context could not be probed (script
	// failure, cross-origin frame, detached frame). The sweep moves on.
	AttemptContextError
)

// Outcome is the final result of a Dismiss call.
type Outcome int

const (
	// NotFound means no consent dialog appeared within the time budget.
	NotFound Outcome = iota
	// Clicked means an acceptance control was clicked.
	Clicked
)

func (o Outcome) String() string {
	if o == Clicked {
		return "clicked"
	}
	return "not_found"
}

// Dismisser scans a page for consent dialogs and accepts them.
type Dismisser struct {
	cfg    config.ConsentConfig
	logger *zap.Logger

	scanScript string
}

// NewDismisser builds a Dismisser from the ordered phrase/selector tables.
func NewDismisser(cfg config.ConsentConfig, logger *zap.Logger) *Dismisser {
	return &Dismisser{
		cfg:        cfg,
		logger:     logger.Named("consent"),
		scanScript: buildScanScript(cfg.Phrases),
	}
}

// Dismiss sweeps the page until an acceptance control is clicked or the time
// budget runs out. It is idempotent: on an already-accepted page every sweep
// comes back empty and the budget simply expires.
func (d *Dismisser) Dismiss(ctx context.Context, page Page) Outcome {
	budgetCtx, cancel := context.WithTimeout(ctx, d.cfg.Budget)
	defer cancel()

	sweeper := rate.NewLimiter(rate.Every(d.cfg.SweepInterval), 1)

	for {
		if res := d.sweep(budgetCtx, page); res == AttemptClicked {
			d.logger.Info("Consent dialog accepted.")
			return Clicked
		}
		if err := sweeper.Wait(budgetCtx); err != nil {
			d.logger.Debug("Consent budget exhausted, no dialog found.")
			return NotFound
		}
	}
}

// sweep probes the main document, the validated selector fallbacks, and any
// likely consent iframes, in that order.
func (d *Dismisser) sweep(ctx context.Context, page Page) AttemptResult {
	if res := d.scanMainDocument(ctx, page); res == AttemptClicked {
		return res
	}
	if res := d.trySelectorFallbacks(ctx, page); res == AttemptClicked {
		return res
	}
	return d.scanConsentFrames(ctx, page)
}

// scanMainDocument runs the text/aria heuristic over the main document and
// any same-origin iframes reachable through contentDocument.
func (d *Dismisser) scanMainDocument(ctx context.Context, page Page) AttemptResult {
	var clicked bool
	if err := page.Evaluate(ctx, d.scanScript, &clicked); err != nil {
		d.logger.Debug("Main document scan failed.", zap.Error(err))
		return AttemptContextError
	}
	if clicked {
		return AttemptClicked
	}
	return AttemptNotFound
}

// trySelectorFallbacks walks the ordered CSS selector table. Each candidate is
// re-validated against its own text/aria-label before the click, so a broad
// selector cannot hit an unrelated button.
func (d *Dismisser) trySelectorFallbacks(ctx context.Context, page Page) AttemptResult {
	for _, selector := range d.cfg.Selectors {
		var valid bool
		if err := page.Evaluate(ctx, buildValidationScript(selector), &valid); err != nil || !valid {
			continue
		}
		if err := page.ClickSelector(ctx, selector, time.Second); err != nil {
			d.logger.Debug("Fallback selector click failed.", zap.String("selector", selector), zap.Error(err))
			continue
		}
		d.logger.Debug("Fallback selector clicked.", zap.String("selector", selector))
		return AttemptClicked
	}
	return AttemptNotFound
}

// scanConsentFrames attaches to out-of-process iframes whose URL or title
// looks consent-related and reruns the heuristic inside them. A frame that
// cannot be attached is skipped; it never aborts the sweep.
func (d *Dismisser) scanConsentFrames(ctx context.Context, page Page) AttemptResult {
	frames, err := page.ConsentFrames(ctx, d.cfg.FrameKeywords)
	if err != nil {
		d.logger.Debug("Frame enumeration failed.", zap.Error(err))
		return AttemptContextError
	}

	for _, frame := range frames {
		var clicked bool
		err := page.WithFrame(ctx, frame, func(scope browser.FrameScope) error {
			return scope.Evaluate(ctx, d.scanScript, &clicked)
		})
		if err != nil {
			d.logger.Debug("Consent frame unusable.", zap.String("frame_url", frame.URL), zap.Error(err))
			continue
		}
		if clicked {
			d.logger.Debug("Consent accepted inside frame.", zap.String("frame_url", frame.URL))
			return AttemptClicked
		}
	}
	return AttemptNotFound
}

// buildScanScript renders the acceptance heuristic with the phrase table
// baked in. The script clicks the first matching button-like element and
// reports whether it did so.
func buildScanScript(phrases []string) string {
	encoded, err := json.Marshal(phrases)
	if err != nil {
		encoded = []byte(`[]`)
	}
	return fmt.Sprintf(`(() => {
		const phrases = %s;
		const matches = (el) => {
			const aria = (el.getAttribute('aria-label') || '').toLowerCase();
			const txt = (el.innerText || el.textContent || '').trim().toLowerCase();
			return phrases.some(p => aria.includes(p) || txt.includes(p));
		};
		const scan = (doc, depth) => {
			if (!doc || depth > 3) return false;
			const buttons = doc.querySelectorAll('button, tp-yt-paper-button, [role="button"]');
			for (const b of buttons) {
				if (matches(b)) { b.click(); return true; }
			}
			for (const f of doc.querySelectorAll('iframe')) {
				try {
					if (scan(f.contentDocument, depth + 1)) return true;
				} catch (e) { /* cross-origin frame */ }
			}
			return false;
		};
		return scan(document, 0);
	})()`, encoded)
}

// buildValidationScript checks that the element behind a fallback selector
// actually reads like an acceptance control.
func buildValidationScript(selector string) string {
	encoded, err := json.Marshal(selector)
	if err != nil {
		return `false`
	}
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const txt = (el.innerText || '').toLowerCase();
		const aria = (el.getAttribute('aria-label') || '').toLowerCase();
		return ['accept', 'agree'].some(t => txt.includes(t) || aria.includes(t));
	})()`, encoded)
}
