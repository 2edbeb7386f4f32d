// File: internal/playback/monitor.go
package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

// Outcome is the terminal state of one Watch invocation. Every outcome counts
// as "this view is done"; the caller does not distinguish degraded endings
// from natural ones.
type Outcome int

const (
	// OutcomeEnded means the media signalled its natural end, or playback
	// reached the detected duration minus the polling slack.
	OutcomeEnded Outcome = iota
	// OutcomeLoopDetected means short-form content restarted after having
	// been near its end; one play cycle completed.
	OutcomeLoopDetected
	// OutcomeStalled means playback could not be induced despite repeated
	// restart attempts.
	OutcomeStalled
	// OutcomeHardCap means the wall-clock safety ceiling fired.
	OutcomeHardCap
	// OutcomeCanceled means the surrounding context was canceled.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnded:
		return "ended"
	case OutcomeLoopDetected:
		return "loop"
	case OutcomeStalled:
		return "stalled"
	case OutcomeHardCap:
		return "hardcap"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ArtifactSink receives stall diagnostics. Capture is best-effort; the sink
// must swallow its own failures.
type ArtifactSink interface {
	CaptureStall(ctx context.Context, page Page)
}

// monitorState is the per-invocation mutable state. It lives for exactly one
// Watch call and is discarded at return.
type monitorState struct {
	startTime         time.Time
	lastProgressTime  time.Time
	lastCurrentTime   float64 // -1 until the first sample lands
	zeroProgressSince time.Time
	sawNearEnd        bool
	noProgressRetries int
	announcedDuration bool
	lastLogTime       time.Time
}

// Monitor polls a page until a single viewing of its media is finished.
// Exactly one Monitor operates against a given session at a time.
type Monitor struct {
	cfg       config.PlaybackConfig
	logger    *zap.Logger
	starter   Restarter
	artifacts ArtifactSink
	progress  bool

	// Injected clock, overridable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewMonitor wires the monitor to its restart path and artifact sink.
// Progress reporting is purely observational and never affects transitions.
func NewMonitor(cfg config.PlaybackConfig, starter Restarter, artifacts ArtifactSink, logger *zap.Logger, progress bool) *Monitor {
	return &Monitor{
		cfg:       cfg,
		logger:    logger.Named("monitor"),
		starter:   starter,
		artifacts: artifacts,
		progress:  progress,
		now:       time.Now,
		sleep:     sleepContext,
	}
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

// Watch blocks until the current view is finished. It always terminates: by
// natural end, detected loop, abandoned stall, hard cap, or cancellation.
func (m *Monitor) Watch(ctx context.Context, page Page) Outcome {
	st := &monitorState{
		lastCurrentTime: -1,
	}
	st.startTime = m.now()
	st.lastProgressTime = st.startTime
	deadline := st.startTime.Add(m.cfg.HardCap)

	m.waitReady(ctx, page, deadline)

	for {
		if ctx.Err() != nil {
			return OutcomeCanceled
		}

		sample := m.takeSample(ctx, page)
		tick := m.now()

		// Natural end: native signal, or position within slack of duration.
		if sample.Ended || (sample.Duration > 0 && sample.CurrentTime >= sample.Duration-m.cfg.NearEndSlack) {
			m.logger.Debug("Playback ended.", zap.Float64("current", sample.CurrentTime), zap.Float64("duration", sample.Duration))
			return OutcomeEnded
		}

		if sample.Duration > 0 && sample.CurrentTime >= sample.Duration-m.cfg.NearEndMark {
			st.sawNearEnd = true
		}

		// Time regressing after near-end is the only reliable end signal on
		// auto-repeating content.
		if st.sawNearEnd && st.lastCurrentTime >= 0 && st.lastCurrentTime-sample.CurrentTime > m.cfg.LoopDrop {
			m.logger.Debug("Loop detected.", zap.Float64("previous", st.lastCurrentTime), zap.Float64("current", sample.CurrentTime))
			return OutcomeLoopDetected
		}

		if sample.CurrentTime > st.lastCurrentTime+m.cfg.ProgressDelta {
			st.lastCurrentTime = sample.CurrentTime
			st.lastProgressTime = tick
		}

		if sample.CurrentTime < m.cfg.ZeroProgressEpsilon {
			if st.zeroProgressSince.IsZero() {
				st.zeroProgressSince = tick
			}
		} else {
			st.zeroProgressSince = time.Time{}
			st.noProgressRetries = 0
		}

		// Failed-autoplay stall: playback never left the start line.
		if !st.zeroProgressSince.IsZero() && tick.Sub(st.zeroProgressSince) > m.cfg.ZeroProgressStall {
			if st.noProgressRetries >= m.cfg.MaxRestartRetries {
				m.logger.Warn("Playback could not be induced, abandoning view.", zap.Int("retries", st.noProgressRetries))
				return OutcomeStalled
			}
			if m.artifacts != nil {
				m.artifacts.CaptureStall(ctx, page)
			}
			st.noProgressRetries++
			m.logger.Info("Zero-progress stall, re-triggering playback.", zap.Int("attempt", st.noProgressRetries))
			m.starter.Start(ctx, page)
			st.zeroProgressSince = tick
		}

		// Mid-playback buffering stall: progress happened once, then dried up.
		if tick.Sub(st.lastProgressTime) > m.cfg.GeneralStallAfter {
			m.logger.Info("No playback progress, re-triggering playback.",
				zap.Duration("since_progress", tick.Sub(st.lastProgressTime)))
			m.starter.Start(ctx, page)
			st.lastProgressTime = tick
		}

		// Safety valve against corrupted duration readings and adversarial pages.
		if tick.Sub(st.startTime) > m.cfg.HardCap {
			m.logger.Warn("Hard cap reached, abandoning view.", zap.Duration("cap", m.cfg.HardCap))
			return OutcomeHardCap
		}

		m.reportProgress(st, sample, tick)

		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return OutcomeCanceled
		}
	}
}

// waitReady polls until some media element reports a positive duration, then
// briefly waits for buffered data. Failure to become ready is a valid
// degraded mode; the main loop starts regardless.
func (m *Monitor) waitReady(ctx context.Context, page Page, deadline time.Time) {
	for i := 0; i < m.cfg.ReadyPolls; i++ {
		if ctx.Err() != nil || m.now().After(deadline) {
			return
		}
		var ready bool
		if err := page.Evaluate(ctx, readyScript, &ready); err == nil && ready {
			break
		}
		if err := m.sleep(ctx, m.cfg.ReadyPollInterval); err != nil {
			return
		}
	}

	for i := 0; i < m.cfg.BufferedPolls; i++ {
		if ctx.Err() != nil || m.now().After(deadline) {
			return
		}
		var buffered bool
		if err := page.Evaluate(ctx, bufferedScript, &buffered); err == nil && buffered {
			return
		}
		if err := m.sleep(ctx, m.cfg.ReadyPollInterval); err != nil {
			return
		}
	}
}

// takeSample evaluates the page's media state. A failed probe yields the zero
// sample; the loop carries on.
func (m *Monitor) takeSample(ctx context.Context, page Page) Sample {
	var sample Sample
	if err := page.Evaluate(ctx, sampleScript, &sample); err != nil {
		m.logger.Debug("Sample probe failed.", zap.Error(err))
		return Sample{}
	}
	if sample.CurrentTime < 0 {
		sample.CurrentTime = 0
	}
	if sample.Duration < 0 {
		sample.Duration = 0
	}
	return sample
}

// reportProgress logs the detected duration once and elapsed/percentage lines
// at a bounded rate. Observational only.
func (m *Monitor) reportProgress(st *monitorState, sample Sample, tick time.Time) {
	if !m.progress {
		return
	}
	if !st.announcedDuration && sample.Duration > 0 {
		m.logger.Info("Detected media duration.", zap.Float64("duration_s", sample.Duration))
		st.announcedDuration = true
	}
	if tick.Sub(st.lastLogTime) < m.cfg.ProgressLogInterval {
		return
	}
	st.lastLogTime = tick

	fields := []zap.Field{
		zap.Float64("position_s", sample.CurrentTime),
		zap.Duration("elapsed", tick.Sub(st.startTime)),
	}
	if sample.Duration > 0 {
		fields = append(fields,
			zap.Float64("duration_s", sample.Duration),
			zap.Float64("percent", 100*sample.CurrentTime/sample.Duration))
	}
	m.logger.Info("Playback progress.", fields...)
}
