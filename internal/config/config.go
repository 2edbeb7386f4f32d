// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Consent   ConsentConfig   `mapstructure:"consent" yaml:"consent"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	// Visit gets its marching orders from CLI flags, not the config file.
	Visit VisitConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig controls the zap logger construction.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how the Chromium process is launched.
type BrowserConfig struct {
	// Binary selects the browser family: chrome, chromium or edge.
	// firefox is only valid in system-browser mode.
	Binary     string   `mapstructure:"binary" yaml:"binary"`
	Headless   bool     `mapstructure:"headless" yaml:"headless"`
	NoSandbox  bool     `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableGPU bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args       []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig holds navigation and readiness timeouts.
type NetworkConfig struct {
	NavigationTimeout    time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	DocumentReadyTimeout time.Duration `mapstructure:"document_ready_timeout" yaml:"document_ready_timeout"`
	PostLoadWait         time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// ConsentConfig drives the consent-dialog dismissal sweep.
// Phrases and Selectors are ordered tables; earlier entries win.
type ConsentConfig struct {
	Budget        time.Duration `mapstructure:"budget" yaml:"budget"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Phrases       []string      `mapstructure:"phrases" yaml:"phrases"`
	Selectors     []string      `mapstructure:"selectors" yaml:"selectors"`
	FrameKeywords []string      `mapstructure:"frame_keywords" yaml:"frame_keywords"`
}

// PlaybackConfig holds the tunables of the playback starter and monitor.
// The near-end and loop thresholds are empirical; treat them as knobs,
// not as derived quantities.
type PlaybackConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	NearEndSlack        float64       `mapstructure:"near_end_slack" yaml:"near_end_slack"`
	NearEndMark         float64       `mapstructure:"near_end_mark" yaml:"near_end_mark"`
	LoopDrop            float64       `mapstructure:"loop_drop" yaml:"loop_drop"`
	ProgressDelta       float64       `mapstructure:"progress_delta" yaml:"progress_delta"`
	ZeroProgressEpsilon float64       `mapstructure:"zero_progress_epsilon" yaml:"zero_progress_epsilon"`
	ZeroProgressStall   time.Duration `mapstructure:"zero_progress_stall" yaml:"zero_progress_stall"`
	MaxRestartRetries   int           `mapstructure:"max_restart_retries" yaml:"max_restart_retries"`
	GeneralStallAfter   time.Duration `mapstructure:"general_stall_after" yaml:"general_stall_after"`
	HardCap             time.Duration `mapstructure:"hard_cap" yaml:"hard_cap"`
	ReadyPolls          int           `mapstructure:"ready_polls" yaml:"ready_polls"`
	ReadyPollInterval   time.Duration `mapstructure:"ready_poll_interval" yaml:"ready_poll_interval"`
	BufferedPolls       int           `mapstructure:"buffered_polls" yaml:"buffered_polls"`
	ProgressLogInterval time.Duration `mapstructure:"progress_log_interval" yaml:"progress_log_interval"`
	ShortFormPatterns   []string      `mapstructure:"short_form_patterns" yaml:"short_form_patterns"`
	PlayButtonSelectors []string      `mapstructure:"play_button_selectors" yaml:"play_button_selectors"`
	ClickTargetTimeout  time.Duration `mapstructure:"click_target_timeout" yaml:"click_target_timeout"`
}

// ArtifactsConfig controls where stall diagnostics land.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// VisitConfig centralizes the runtime settings of one `visit` invocation.
type VisitConfig struct {
	URL                string
	Views              int
	Dwell              time.Duration
	Mode               string
	Interaction        string
	ClickSelector      string
	Reuse              bool
	ReloadBetweenViews bool
	WatchUntilEnd      bool
	Progress           bool
	SummaryPath        string
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "revisit-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// Browser defaults
	v.SetDefault("browser.binary", "chrome")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.disable_gpu", true)

	// Network defaults
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.document_ready_timeout", "20s")
	v.SetDefault("network.post_load_wait", "1500ms")

	// Consent defaults
	v.SetDefault("consent.budget", "20s")
	v.SetDefault("consent.sweep_interval", "500ms")
	v.SetDefault("consent.phrases", []string{
		"accept all", "i agree", "i'm ok with that", "accept", "agree",
	})
	v.SetDefault("consent.selectors", []string{
		`button[aria-label*="Accept all" i]`,
		`button[aria-label="Accept all"]`,
		`button[aria-label*="I agree" i]`,
		`button#introAgreeButton`,
		`div[role="dialog"] button`,
		`button.yt-spec-button-shape-next__button`,
	})
	v.SetDefault("consent.frame_keywords", []string{"consent", "privacy", "agree"})

	// Playback defaults
	v.SetDefault("playback.poll_interval", "2s")
	v.SetDefault("playback.near_end_slack", 0.25)
	v.SetDefault("playback.near_end_mark", 0.75)
	v.SetDefault("playback.loop_drop", 1.0)
	v.SetDefault("playback.progress_delta", 0.5)
	v.SetDefault("playback.zero_progress_epsilon", 0.1)
	v.SetDefault("playback.zero_progress_stall", "10s")
	v.SetDefault("playback.max_restart_retries", 3)
	v.SetDefault("playback.general_stall_after", "120s")
	v.SetDefault("playback.hard_cap", "4h")
	v.SetDefault("playback.ready_polls", 60)
	v.SetDefault("playback.ready_poll_interval", "500ms")
	v.SetDefault("playback.buffered_polls", 10)
	v.SetDefault("playback.progress_log_interval", "5s")
	v.SetDefault("playback.short_form_patterns", []string{"/shorts/", "/reels/", "/reel/"})
	v.SetDefault("playback.play_button_selectors", []string{
		`button.ytp-play-button`,
		`#movie_player button[aria-label*="Play" i]`,
		`[aria-label="Play"]`,
		`[data-testid="play-button"]`,
		`button[title*="Play" i]`,
		`video`,
	})
	v.SetDefault("playback.click_target_timeout", "2s")

	// Artifacts defaults
	v.SetDefault("artifacts.dir", "artifacts")
}

// Load unmarshals the viper state into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the rest of the system cannot run with.
func (c *Config) Validate() error {
	if c.Playback.PollInterval <= 0 {
		return fmt.Errorf("playback.poll_interval must be positive, got %s", c.Playback.PollInterval)
	}
	if c.Playback.HardCap <= 0 {
		return fmt.Errorf("playback.hard_cap must be positive, got %s", c.Playback.HardCap)
	}
	if c.Playback.MaxRestartRetries < 0 {
		return fmt.Errorf("playback.max_restart_retries must not be negative, got %d", c.Playback.MaxRestartRetries)
	}
	if c.Consent.SweepInterval <= 0 {
		return fmt.Errorf("consent.sweep_interval must be positive, got %s", c.Consent.SweepInterval)
	}
	switch c.Browser.Binary {
	case "chrome", "chromium", "edge", "firefox":
	default:
		return fmt.Errorf("browser.binary must be one of chrome, chromium, edge, firefox; got %q", c.Browser.Binary)
	}
	return nil
}
