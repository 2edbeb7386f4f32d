// File: internal/playback/playback.go
//
// Package playback brings media elements on a live page into a playing state
// and decides when a single viewing of that media is finished. All probes are
// blind and best-effort: a failed script evaluation yields no information and
// never aborts the surrounding loop.
package playback

import (
	"context"
	"time"
)

// Page is the capability surface playback needs from a browser session.
type Page interface {
	Evaluate(ctx context.Context, js string, out any) error
	ClickSelector(ctx context.Context, selector string, timeout time.Duration) error
	SendKeysToBody(ctx context.Context, keys string) error
	DispatchMouseClick(ctx context.Context, x, y float64) error
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	PageSource(ctx context.Context) (string, error)
}

// Sample is a single poll observation, reduced across every media element on
// the page: the furthest-progressed element wins, and ended flags are OR-ed.
type Sample struct {
	CurrentTime float64 `json:"cur"`
	Duration    float64 `json:"duration"`
	Ended       bool    `json:"ended"`
}

const sampleScript = `(() => {
	const vids = Array.from(document.querySelectorAll('video, audio'));
	let duration = 0, cur = 0, ended = false;
	for (const v of vids) {
		const d = isNaN(v.duration) ? 0 : v.duration;
		duration = Math.max(duration, d);
		cur = Math.max(cur, v.currentTime || 0);
		ended = ended || v.ended === true;
	}
	return { cur: cur, duration: duration, ended: ended };
})()`

const readyScript = `(() => {
	const vids = Array.from(document.querySelectorAll('video, audio'));
	return vids.some(v => !isNaN(v.duration) && v.duration > 0);
})()`

// HAVE_FUTURE_DATA: enough buffered to actually advance playback.
const bufferedScript = `(() => {
	const vids = Array.from(document.querySelectorAll('video, audio'));
	return vids.some(v => v.readyState >= 3);
})()`
