// File: internal/sysbrowser/sysbrowser_test.go
package sysbrowser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

func newTestVisitor(cfg config.VisitConfig, opener Opener) (*Visitor, *[]time.Duration) {
	v := NewVisitor(cfg, opener, zap.NewNop())
	var slept []time.Duration
	v.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return v, &slept
}

func TestRunOpensOncePerView(t *testing.T) {
	var opened []string
	opener := OpenerFunc(func(_ context.Context, url string) error {
		opened = append(opened, url)
		return nil
	})
	v, slept := newTestVisitor(config.VisitConfig{
		URL:   "https://example.com",
		Views: 3,
		Dwell: 2 * time.Second,
	}, opener)

	require.NoError(t, v.Run(context.Background()))
	assert.Len(t, opened, 3)
	// No dwell after the final view.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)
}

func TestRunStopsOnOpenerFailure(t *testing.T) {
	calls := 0
	opener := OpenerFunc(func(context.Context, string) error {
		calls++
		if calls == 2 {
			return errors.New("no display")
		}
		return nil
	})
	v, _ := newTestVisitor(config.VisitConfig{URL: "https://example.com", Views: 5, Dwell: time.Second}, opener)

	err := v.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view 2")
	assert.Equal(t, 2, calls)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opener := OpenerFunc(func(context.Context, string) error { return nil })
	v, _ := newTestVisitor(config.VisitConfig{URL: "https://example.com", Views: 3, Dwell: time.Second}, opener)

	assert.ErrorIs(t, v.Run(ctx), context.Canceled)
}

func TestPlatformOpenerCommandSelection(t *testing.T) {
	// Only the command choice is testable without launching anything.
	for goos, want := range map[string]string{
		"linux":   "xdg-open",
		"darwin":  "open",
		"windows": "rundll32",
	} {
		p := &platformOpener{goos: goos}
		// Run against an unreachable context so the command never executes.
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.Open(ctx, "https://example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), want, "opener for %s", goos)
	}
}
