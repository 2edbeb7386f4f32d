// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/revisit-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process (the chromedp exec allocator) and creates
// tab-scoped Sessions against it.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates the allocator context for the browser lifecycle.
// The browser process itself starts lazily with the first session.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	opts, err := execOptions(cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	m := &Manager{
		logger:      logger.Named("browser_manager"),
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}
	m.logger.Info("Browser manager created.",
		zap.String("binary", cfg.Browser.Binary),
		zap.Bool("headless", cfg.Browser.Headless))
	return m, nil
}

// execOptions translates the application config into chromedp allocator options.
func execOptions(cfg *config.Config) ([]chromedp.ExecAllocatorOption, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Recommended for stability in containers/headless environments.
		chromedp.Flag("disable-dev-shm-usage", true),
		// Muted autoplay is allowed without this, but some players check it.
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)

	if cfg.Browser.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.Browser.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}

	path, err := resolveBinary(cfg.Browser.Binary)
	if err != nil {
		return nil, err
	}
	if path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}

	// Add additional flags from the config file's 'args' slice.
	for _, arg := range cfg.Browser.Args {
		arg = strings.TrimPrefix(arg, "--")
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(arg, true))
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		opts = append(opts, chromedp.Flag(parts[0], parts[1]))
	}

	return opts, nil
}

// resolveBinary maps the configured browser family to an executable path.
// An empty return value means chromedp's own lookup applies.
func resolveBinary(binary string) (string, error) {
	var candidates []string
	switch binary {
	case "chrome", "":
		return "", nil
	case "chromium":
		candidates = []string{"chromium", "chromium-browser"}
	case "edge":
		candidates = []string{"msedge", "microsoft-edge", "microsoft-edge-stable"}
	case "firefox":
		return "", ErrFirefoxUnsupported
	default:
		return "", fmt.Errorf("unknown browser %q", binary)
	}

	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", &DriverError{Op: "resolve binary", Err: fmt.Errorf("no executable found for %q (tried %s)", binary, strings.Join(candidates, ", "))}
}

// NewSession opens a fresh tab and returns a Session bound to it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Force target creation now so that launch failures surface here, not on
	// the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, &DriverError{Op: "launch", Err: err}
	}

	session := newSession(tabCtx, tabCancel, m.cfg, m.logger)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes all outstanding sessions and tears down the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.Lock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	g, gCtx := errgroup.WithContext(closeCtx)
	for _, s := range sessionsToClose {
		g.Go(func() error {
			return s.Close(gCtx)
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("Error while closing sessions during shutdown.", zap.Error(err))
	}

	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
