// File: internal/playback/monitor_test.go
package playback

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// respond marshals a scripted value into the probe's output target, the same
// way chromedp materializes evaluation results.
func respond(out, value any) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// fakeClock drives the monitor through virtual time: every sleep advances the
// clock instantly.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.t = c.t.Add(d)
	return nil
}

// monitorPage replays a scripted sample sequence; the last sample repeats
// once the sequence is exhausted.
type monitorPage struct {
	samples  []Sample
	idx      int
	ready    bool
	buffered bool
}

func (p *monitorPage) Evaluate(_ context.Context, js string, out any) error {
	switch {
	case strings.Contains(js, "v.duration > 0"):
		return respond(out, p.ready)
	case strings.Contains(js, "readyState"):
		return respond(out, p.buffered)
	default:
		s := Sample{}
		if len(p.samples) > 0 {
			if p.idx < len(p.samples) {
				s = p.samples[p.idx]
				p.idx++
			} else {
				s = p.samples[len(p.samples)-1]
			}
		}
		return respond(out, s)
	}
}

func (p *monitorPage) ClickSelector(context.Context, string, time.Duration) error { return nil }
func (p *monitorPage) SendKeysToBody(context.Context, string) error               { return nil }
func (p *monitorPage) DispatchMouseClick(context.Context, float64, float64) error { return nil }
func (p *monitorPage) CurrentURL(context.Context) (string, error)                 { return "https://example.com/watch", nil }
func (p *monitorPage) Screenshot(context.Context) ([]byte, error)                 { return []byte("png"), nil }
func (p *monitorPage) PageSource(context.Context) (string, error)                 { return "<html></html>", nil }

type fakeRestarter struct {
	calls int
}

func (r *fakeRestarter) Start(context.Context, Page) bool {
	r.calls++
	return false
}

type fakeSink struct {
	captures int
}

func (s *fakeSink) CaptureStall(context.Context, Page) { s.captures++ }

func monitorConfig() config.PlaybackConfig {
	return config.PlaybackConfig{
		PollInterval:        2 * time.Second,
		NearEndSlack:        0.25,
		NearEndMark:         0.75,
		LoopDrop:            1.0,
		ProgressDelta:       0.5,
		ZeroProgressEpsilon: 0.1,
		ZeroProgressStall:   10 * time.Second,
		MaxRestartRetries:   3,
		GeneralStallAfter:   120 * time.Second,
		HardCap:             4 * time.Hour,
		ReadyPolls:          2,
		ReadyPollInterval:   500 * time.Millisecond,
		BufferedPolls:       1,
		ProgressLogInterval: 5 * time.Second,
	}
}

func newTestMonitor(cfg config.PlaybackConfig, starter Restarter, sink ArtifactSink) (*Monitor, *fakeClock) {
	m := NewMonitor(cfg, starter, sink, zap.NewNop(), false)
	clock := newFakeClock()
	m.now = clock.Now
	m.sleep = clock.Sleep
	return m, clock
}

func TestWatchNaturalEndBoundary(t *testing.T) {
	// duration 120: 119.7 must keep polling, 119.8 must end (slack 0.25).
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples: []Sample{
			{CurrentTime: 119.7, Duration: 120},
			{CurrentTime: 119.8, Duration: 120},
		},
	}
	m, _ := newTestMonitor(monitorConfig(), &fakeRestarter{}, &fakeSink{})

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeEnded, outcome)
	assert.Equal(t, 2, page.idx, "must not end on the 119.7 sample")
}

func TestWatchEndsExactlyAtSlackBoundary(t *testing.T) {
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples:  []Sample{{CurrentTime: 119.75, Duration: 120}},
	}
	m, _ := newTestMonitor(monitorConfig(), &fakeRestarter{}, &fakeSink{})

	assert.Equal(t, OutcomeEnded, m.Watch(context.Background(), page))
}

func TestWatchEndedFlagTerminates(t *testing.T) {
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples: []Sample{
			{CurrentTime: 0, Duration: 10},
			{CurrentTime: 2, Duration: 10},
			{CurrentTime: 4, Duration: 10},
			{CurrentTime: 6, Duration: 10},
			{CurrentTime: 8, Duration: 10},
			{CurrentTime: 9.6, Duration: 10},
			{CurrentTime: 9.6, Duration: 10, Ended: true},
		},
	}
	m, clock := newTestMonitor(monitorConfig(), &fakeRestarter{}, &fakeSink{})
	start := clock.Now()

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeEnded, outcome)
	assert.Equal(t, 7, page.idx)
	// Elapsed tracks the sample timing, nowhere near the hard cap.
	assert.Less(t, clock.Now().Sub(start), time.Minute)
}

func TestWatchZeroDurationNeverTriggersNaturalEnd(t *testing.T) {
	cfg := monitorConfig()
	cfg.HardCap = 30 * time.Second
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples:  []Sample{{CurrentTime: 5, Duration: 0}},
	}
	m, _ := newTestMonitor(cfg, &fakeRestarter{}, &fakeSink{})

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeHardCap, outcome, "duration 0 is a degraded mode, not an end signal")
}

func TestWatchLoopDetection(t *testing.T) {
	// Near-end at 9.4 (mark 9.25), then a drop of exactly 1.0 must NOT
	// terminate; a drop beyond 1.0 must.
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples: []Sample{
			{CurrentTime: 9.4, Duration: 10},
			{CurrentTime: 8.4, Duration: 10},
			{CurrentTime: 8.2, Duration: 10},
		},
	}
	m, _ := newTestMonitor(monitorConfig(), &fakeRestarter{}, &fakeSink{})

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeLoopDetected, outcome)
	assert.Equal(t, 3, page.idx, "the exact-1.0 drop must not terminate")
}

func TestWatchLoopRequiresNearEnd(t *testing.T) {
	// The same regression without a prior near-end observation is a seek or
	// a glitch, not a loop.
	cfg := monitorConfig()
	cfg.HardCap = 20 * time.Second
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples: []Sample{
			{CurrentTime: 5.0, Duration: 100},
			{CurrentTime: 2.0, Duration: 100},
		},
	}
	m, _ := newTestMonitor(cfg, &fakeRestarter{}, &fakeSink{})

	assert.Equal(t, OutcomeHardCap, m.Watch(context.Background(), page))
}

func TestWatchZeroProgressStallRetriesThenGivesUp(t *testing.T) {
	page := &monitorPage{samples: []Sample{{CurrentTime: 0, Duration: 0}}}
	restarter := &fakeRestarter{}
	sink := &fakeSink{}
	m, clock := newTestMonitor(monitorConfig(), restarter, sink)
	start := clock.Now()

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeStalled, outcome)
	assert.Equal(t, 3, restarter.calls, "exactly three restart attempts before abandoning")
	assert.Equal(t, 3, sink.captures, "each stall trigger captures diagnostics")
	assert.Less(t, clock.Now().Sub(start), 2*time.Minute, "must not hang anywhere near the hard cap")
}

func TestWatchHardCapWithUnreadyVideo(t *testing.T) {
	cfg := monitorConfig()
	cfg.HardCap = 5 * time.Second
	cfg.ReadyPolls = 60
	page := &monitorPage{samples: []Sample{{CurrentTime: 0, Duration: 0}}}
	m, clock := newTestMonitor(cfg, &fakeRestarter{}, &fakeSink{})
	start := clock.Now()

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeHardCap, outcome)
	elapsed := clock.Now().Sub(start)
	require.LessOrEqual(t, elapsed, cfg.HardCap+2*cfg.PollInterval,
		"the cap must hold even while the ready wait is still polling")
}

func TestWatchGeneralStallRetriggersPlayback(t *testing.T) {
	// Progress happens once, then freezes above the zero-progress epsilon:
	// only the general stall guard can fire.
	cfg := monitorConfig()
	cfg.GeneralStallAfter = 20 * time.Second
	cfg.HardCap = 90 * time.Second
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples: []Sample{
			{CurrentTime: 3, Duration: 300},
		},
	}
	restarter := &fakeRestarter{}
	sink := &fakeSink{}
	m, _ := newTestMonitor(cfg, restarter, sink)

	outcome := m.Watch(context.Background(), page)

	assert.Equal(t, OutcomeHardCap, outcome)
	assert.GreaterOrEqual(t, restarter.calls, 2, "mid-playback stall must re-trigger the starter")
	assert.Zero(t, sink.captures, "general stalls do not capture artifacts")
}

func TestWatchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &monitorPage{ready: true, buffered: true, samples: []Sample{{CurrentTime: 0, Duration: 10}}}
	m, _ := newTestMonitor(monitorConfig(), &fakeRestarter{}, &fakeSink{})

	assert.Equal(t, OutcomeCanceled, m.Watch(ctx, page))
}

func TestTakeSampleClampsNegativeReadings(t *testing.T) {
	page := &monitorPage{
		ready:    true,
		buffered: true,
		samples:  []Sample{{CurrentTime: -3, Duration: -1}},
	}
	m, _ := newTestMonitor(monitorConfig(), &fakeRestarter{}, &fakeSink{})

	sample := m.takeSample(context.Background(), page)

	assert.GreaterOrEqual(t, sample.CurrentTime, 0.0)
	assert.GreaterOrEqual(t, sample.Duration, 0.0)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ended", OutcomeEnded.String())
	assert.Equal(t, "loop", OutcomeLoopDetected.String())
	assert.Equal(t, "stalled", OutcomeStalled.String())
	assert.Equal(t, "hardcap", OutcomeHardCap.String())
	assert.Equal(t, "canceled", OutcomeCanceled.String())
}
