package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/revisit-cli/internal/browser"
	"github.com/xkilldash9x/revisit-cli/internal/config"
	"github.com/xkilldash9x/revisit-cli/internal/consent"
	"github.com/xkilldash9x/revisit-cli/internal/observability"
	"github.com/xkilldash9x/revisit-cli/internal/orchestrator"
	"github.com/xkilldash9x/revisit-cli/internal/playback"
	"github.com/xkilldash9x/revisit-cli/internal/sysbrowser"
)

// newVisitCmd creates and configures the `visit` command.
func newVisitCmd() *cobra.Command {
	visitCmd := &cobra.Command{
		Use:   "visit",
		Short: "Visits a URL repeatedly, handling consent dialogs and media playback",
		Long: `Visits the given URL a number of times in a controlled browser.

Each view dismisses consent overlays, then either dwells on the page with an
optional interaction or, with --watch-until-end, starts media playback and
waits for it to finish (including loop detection on short-form content).`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags correctly override config file and environment values.
			// The browser flags map into the nested browser section; binding
			// them under their flag names would shadow that section with a
			// scalar and break unmarshalling.
			if err := viper.BindPFlag("browser.binary", cmd.Flags().Lookup("browser")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			for _, name := range []string{
				"url", "views", "duration", "mode", "interaction",
				"click-selector", "reuse", "reload-between-views",
				"watch-until-end", "progress", "summary",
			} {
				if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if err := populateVisitConfig(cfg); err != nil {
				return err
			}

			logger.Info("Starting visit run",
				zap.String("url", cfg.Visit.URL),
				zap.Int("views", cfg.Visit.Views),
				zap.String("mode", cfg.Visit.Mode),
				zap.Bool("reuse", cfg.Visit.Reuse),
				zap.Bool("watch_until_end", cfg.Visit.WatchUntilEnd),
			)

			if cfg.Visit.Mode == "system" {
				visitor := sysbrowser.NewVisitor(cfg.Visit, sysbrowser.NewPlatformOpener(), logger)
				return visitor.Run(ctx)
			}
			return runAutomation(ctx, cfg, logger)
		},
	}

	flags := visitCmd.Flags()
	flags.StringP("url", "u", "", "Target URL to visit (required)")
	flags.IntP("views", "n", 5, "Number of views to perform")
	flags.Float64P("duration", "d", 3.0, "Dwell time per view in seconds (ignored with --watch-until-end)")
	flags.String("mode", "automation", "Visit mode: 'automation' (controlled browser) or 'system' (default browser); 'selenium' and 'system-browser' are accepted aliases")
	flags.StringP("browser", "b", "chrome", "Browser family: chrome, chromium, edge (firefox only in system mode)")
	flags.Bool("headless", false, "Run the browser without a visible window")
	flags.Bool("reuse", false, "Reuse one browser session for all views instead of one per view")
	flags.String("interaction", "none", "Per-view interaction: none, space, scroll, click")
	flags.String("click-selector", "", "CSS selector for the click interaction")
	flags.Bool("reload-between-views", false, "With --reuse, reload in place instead of re-navigating")
	flags.Bool("watch-until-end", false, "Start media playback and wait for it to finish")
	flags.Bool("progress", false, "Log playback progress during --watch-until-end")
	flags.String("summary", "", "Write a JSON run summary to this path")

	_ = visitCmd.MarkFlagRequired("url")

	return visitCmd
}

// populateVisitConfig finalizes the per-run settings from the resolved flag
// and config values.
func populateVisitConfig(cfg *config.Config) error {
	url := viper.GetString("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	cfg.Visit = config.VisitConfig{
		URL:                url,
		Views:              viper.GetInt("views"),
		Dwell:              time.Duration(viper.GetFloat64("duration") * float64(time.Second)),
		Mode:               viper.GetString("mode"),
		Interaction:        viper.GetString("interaction"),
		ClickSelector:      viper.GetString("click-selector"),
		Reuse:              viper.GetBool("reuse"),
		ReloadBetweenViews: viper.GetBool("reload-between-views"),
		WatchUntilEnd:      viper.GetBool("watch-until-end"),
		Progress:           viper.GetBool("progress"),
		SummaryPath:        viper.GetString("summary"),
	}

	if cfg.Visit.Views < 1 {
		return fmt.Errorf("--views must be at least 1, got %d", cfg.Visit.Views)
	}
	// Accept the historical mode names alongside the native ones.
	switch cfg.Visit.Mode {
	case "selenium":
		cfg.Visit.Mode = "automation"
	case "system-browser":
		cfg.Visit.Mode = "system"
	}
	switch cfg.Visit.Mode {
	case "automation", "system":
	default:
		return fmt.Errorf("--mode must be 'automation' or 'system', got %q", cfg.Visit.Mode)
	}
	switch cfg.Visit.Interaction {
	case "", "none", "space", "scroll", "click":
	default:
		return fmt.Errorf("--interaction must be one of none, space, scroll, click; got %q", cfg.Visit.Interaction)
	}
	if cfg.Visit.Mode == "automation" && cfg.Browser.Binary == "firefox" {
		return fmt.Errorf("firefox cannot be automated; use --mode system or a Chromium-family browser: %w", browser.ErrFirefoxUnsupported)
	}
	return nil
}

// runAutomation wires the browser manager, consent dismisser, playback stack
// and orchestrator together and executes the run.
func runAutomation(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}()

	factory := orchestrator.SessionFactoryFunc(func(ctx context.Context) (orchestrator.Session, error) {
		return manager.NewSession(ctx)
	})
	dismisser := consent.NewDismisser(cfg.Consent, logger)
	starter := playback.NewStarter(cfg.Playback, logger)
	artifacts := playback.NewArtifactWriter(cfg.Artifacts, logger)
	monitor := playback.NewMonitor(cfg.Playback, starter, artifacts, logger, cfg.Visit.Progress)

	orch, err := orchestrator.New(cfg, factory, dismisser, starter, monitor, logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	summary, runErr := orch.Run(ctx)

	if summary != nil {
		logger.Info("Visit run finished",
			zap.Int("completed", summary.Completed),
			zap.Int("requested", summary.Views),
			zap.Float64("elapsed_s", summary.ElapsedSeconds))
		if path := cfg.Visit.SummaryPath; path != "" {
			if err := summary.WriteFile(path); err != nil {
				logger.Warn("Could not write run summary", zap.Error(err))
			} else {
				logger.Info("Run summary written", zap.String("path", path))
			}
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Visit run aborted by user signal")
			return runErr
		}
		logger.Error("Visit run failed", zap.Error(runErr))
		return runErr
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newVisitCmd())
}
