// File: internal/sysbrowser/sysbrowser.go
//
// Package sysbrowser implements the fallback visit mode that drives the
// user's default system browser through the platform opener instead of an
// automated session. No consent handling, playback control or teardown is
// possible in this mode; each view is an opened tab plus a dwell.
package sysbrowser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

// Opener launches a URL in the system browser. The default implementation
// shells out to the platform opener; tests substitute a recorder.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// platformOpener picks the opener command for the current OS.
type platformOpener struct {
	goos string
}

// NewPlatformOpener returns the opener for the running platform.
func NewPlatformOpener() Opener {
	return &platformOpener{goos: runtime.GOOS}
}

func (p *platformOpener) Open(ctx context.Context, url string) error {
	var name string
	var args []string
	switch p.goos {
	case "darwin":
		name = "open"
		args = []string{url}
	case "windows":
		name = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		name = "xdg-open"
		args = []string{url}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("system browser open via %s failed: %w", name, err)
	}
	return nil
}

// Visitor opens the target URL repeatedly in the system browser.
type Visitor struct {
	cfg    config.VisitConfig
	logger *zap.Logger
	opener Opener

	sleep func(ctx context.Context, d time.Duration) error
}

// NewVisitor builds a Visitor around the given opener.
func NewVisitor(cfg config.VisitConfig, opener Opener, logger *zap.Logger) *Visitor {
	return &Visitor{
		cfg:    cfg,
		logger: logger.Named("sysbrowser"),
		opener: opener,
		sleep:  sleepContext,
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

// Run opens the URL once per view, dwelling between opens. Tabs accumulate in
// the user's browser; this mode never kills or reuses anything.
func (v *Visitor) Run(ctx context.Context) error {
	for view := 1; view <= v.cfg.Views; view++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		v.logger.Info("Opening view in system browser.",
			zap.Int("view", view),
			zap.Int("total", v.cfg.Views),
			zap.String("url", v.cfg.URL))

		if err := v.opener.Open(ctx, v.cfg.URL); err != nil {
			return fmt.Errorf("view %d: %w", view, err)
		}

		if view < v.cfg.Views {
			if err := v.sleep(ctx, v.cfg.Dwell); err != nil {
				return err
			}
		}
	}

	v.logger.Info("System browser visits complete.", zap.Int("views", v.cfg.Views))
	return nil
}
