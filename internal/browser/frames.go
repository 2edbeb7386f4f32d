// File: internal/browser/frames.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Frame identifies an out-of-process iframe reachable as its own CDP target.
// Same-process iframes never show up here; those are reachable directly from
// the main document via contentDocument.
type Frame struct {
	TargetID target.ID
	URL      string
	Title    string
}

// FrameScope is the restricted capability surface available inside a frame.
type FrameScope interface {
	Evaluate(ctx context.Context, js string, out any) error
	ClickSelector(ctx context.Context, selector string, timeout time.Duration) error
}

// ConsentFrames enumerates iframe targets whose URL or title contains one of
// the given keywords. Enumeration failures yield an empty list, not an abort.
func (s *Session) ConsentFrames(ctx context.Context, keywords []string) ([]Frame, error) {
	var infos []*target.Info
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("target enumeration failed: %w", err)
	}

	var frames []Frame
	for _, info := range infos {
		if info.Type != "iframe" {
			continue
		}
		url := strings.ToLower(info.URL)
		title := strings.ToLower(info.Title)
		for _, kw := range keywords {
			if strings.Contains(url, kw) || strings.Contains(title, kw) {
				frames = append(frames, Frame{TargetID: info.TargetID, URL: info.URL, Title: info.Title})
				break
			}
		}
	}
	return frames, nil
}

// WithFrame attaches to the given frame target, runs fn against it, and
// detaches again on every exit path. Cross-origin or detached frames fail the
// attach; the caller treats that frame as unusable and moves on.
func (s *Session) WithFrame(ctx context.Context, frame Frame, fn func(FrameScope) error) error {
	frameCtx, frameCancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(frame.TargetID))
	defer frameCancel()

	// Verify the attach before handing the scope out.
	attachCtx, attachCancel := CombineContext(frameCtx, ctx)
	defer attachCancel()
	if err := chromedp.Run(attachCtx); err != nil {
		s.logger.Debug("Frame attach failed.", zap.String("frame_url", frame.URL), zap.Error(err))
		return fmt.Errorf("attach to frame %q failed: %w", frame.URL, err)
	}

	return fn(&frameScope{ctx: frameCtx})
}

// frameScope routes evaluation and clicks into an attached frame target.
type frameScope struct {
	ctx context.Context
}

func (f *frameScope) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(f.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (f *frameScope) Evaluate(ctx context.Context, js string, out any) error {
	return f.run(ctx, chromedp.Evaluate(js, out))
}

func (f *frameScope) ClickSelector(ctx context.Context, selector string, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := f.run(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click failed for selector %q in frame: %w", selector, err)
	}
	return nil
}
