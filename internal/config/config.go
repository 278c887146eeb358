// Package config loads narrator configuration from flags, environment variables, and .env files.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/logger"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Narration NarrationConfig
	Browser   BrowserConfig
	Audio     AudioConfig
	Server    ServerConfig
	Store     StoreConfig
	Worker    WorkerConfig
	Inbox     InboxConfig
	Retention RetentionConfig
	NATS      NATSConfig
	Artifacts ArtifactsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	File  string // Optional rotating log file
}

// NarrationConfig holds pipeline defaults.
type NarrationConfig struct {
	OutputPath      string
	DefaultNarrator domain.Narrator
	WordLimit       int
	ChunkRetries    int // 0 or 1
}

// BrowserConfig holds capture session configuration.
type BrowserConfig struct {
	ChromePath        string // Optional, auto-detected by chromedp when empty
	Headless          bool
	StartupTimeout    time.Duration
	SynthesisTimeout  time.Duration
	SettleDelay       time.Duration
	PollInterval      time.Duration
	SynthesisInterval time.Duration // Minimum gap between synthesis starts against the TTS host
}

// AudioConfig holds decode and export configuration.
type AudioConfig struct {
	FFmpegPath string
	SampleRate int
	Channels   int
	MP3Quality int     // libmp3lame VBR quality, 0 (best) to 9
	Tolerance  float64 // Seconds of acceptable duration drift after export
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	SubmitRate   int // Narration submissions per client per minute, 0 disables
}

// StoreConfig holds job store configuration.
type StoreConfig struct {
	Path string
}

// WorkerConfig holds narration worker configuration.
type WorkerConfig struct {
	MaxConcurrent int
}

// InboxConfig holds the watched drop directory. Empty disables the watcher.
type InboxConfig struct {
	Dir string
}

// RetentionConfig controls the periodic cleanup of finished jobs. Zero disables it.
type RetentionConfig struct {
	MaxAge time.Duration
}

// NATSConfig holds event publishing configuration. Empty URL disables publishing.
type NATSConfig struct {
	URL string
}

// ArtifactsConfig holds object storage configuration. Empty endpoint disables uploads.
type ArtifactsConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type setting struct {
	flag  string
	env   string
	def   string
	usage string
}

var settings = []setting{
	{"env", "ENV", "development", "Environment (development, staging, production)"},
	{"log-level", "LOG_LEVEL", "info", "Log level (debug, info, warn, error)"},
	{"log-file", "LOG_FILE", "", "Rotating log file path (optional)"},

	{"output-path", "NARRATION_OUTPUT_PATH", "", "Directory narrations are written under"},
	{"narrator", "NARRATION_DEFAULT_NARRATOR", string(domain.NarratorNarrator), "Default narrator"},
	{"word-limit", "NARRATION_WORD_LIMIT", "200", "Maximum words per synthesis chunk"},
	{"chunk-retries", "NARRATION_CHUNK_RETRIES", "0", "Re-synthesize a chunk once when no response was captured (0 or 1)"},

	{"chrome-path", "CHROME_PATH", "", "Path to the Chrome binary (default: auto-detect)"},
	{"headless", "BROWSER_HEADLESS", "true", "Run the browser headless"},
	{"startup-timeout", "BROWSER_STARTUP_TIMEOUT", "60s", "Time allowed for the TTS page to become interactive"},
	{"synthesis-timeout", "BROWSER_SYNTHESIS_TIMEOUT", "15m", "Time allowed for one chunk to finish synthesizing"},
	{"settle-delay", "BROWSER_SETTLE_DELAY", "750ms", "Pause after DOM mutations"},
	{"poll-interval", "BROWSER_POLL_INTERVAL", "250ms", "Interval for condition polling"},
	{"synthesis-interval", "BROWSER_SYNTHESIS_INTERVAL", "2s", "Minimum gap between synthesis starts"},

	{"ffmpeg-path", "FFMPEG_PATH", "ffmpeg", "Path to ffmpeg binary"},
	{"sample-rate", "AUDIO_SAMPLE_RATE", "44100", "Decode sample rate"},
	{"channels", "AUDIO_CHANNELS", "1", "Decode channel count"},
	{"mp3-quality", "AUDIO_MP3_QUALITY", "2", "libmp3lame VBR quality (0-9)"},
	{"tolerance", "AUDIO_TOLERANCE", "0.05", "Acceptable export duration drift in seconds"},

	{"port", "SERVER_PORT", "8080", "Server port"},
	{"read-timeout", "SERVER_READ_TIMEOUT", "15s", "HTTP read timeout"},
	{"write-timeout", "SERVER_WRITE_TIMEOUT", "15s", "HTTP write timeout"},
	{"idle-timeout", "SERVER_IDLE_TIMEOUT", "60s", "HTTP idle timeout"},
	{"submit-rate", "SERVER_SUBMIT_RATE", "30", "Narration submissions allowed per client per minute (0 disables)"},

	{"store-path", "STORE_PATH", "", "Job database directory"},
	{"max-concurrent", "WORKER_MAX_CONCURRENT", "1", "Max concurrent narration jobs"},
	{"inbox-dir", "INBOX_DIR", "", "Directory watched for .txt files to narrate (optional)"},
	{"retention", "RETENTION_MAX_AGE", "0", "Delete finished jobs older than this (0 disables)"},
	{"nats-url", "NATS_URL", "", "NATS server URL for job events (optional)"},

	{"artifacts-endpoint", "ARTIFACTS_ENDPOINT", "", "S3-compatible endpoint for uploads (optional)"},
	{"artifacts-bucket", "ARTIFACTS_BUCKET", "narrations", "Artifact bucket"},
	{"artifacts-access-key", "ARTIFACTS_ACCESS_KEY", "", "Artifact access key"},
	{"artifacts-secret-key", "ARTIFACTS_SECRET_KEY", "", "Artifact secret key"},
	{"artifacts-ssl", "ARTIFACTS_USE_SSL", "false", "Use TLS for the artifact endpoint"},
}

// Flags holds the config flags bound to a FlagSet, keyed by environment variable.
type Flags struct {
	values  map[string]*string
	envFile *string
}

// BindFlags registers every config flag on fs. Callers may add their own flags to fs
// before parsing, then call Resolve.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{values: make(map[string]*string, len(settings))}
	for _, s := range settings {
		f.values[s.env] = fs.String(s.flag, "", s.usage+" (default: "+s.def+")")
	}
	f.envFile = fs.String("env-file", ".env", "Path to .env file")
	return f
}

// Load parses args and resolves the configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("narrator", flag.ContinueOnError)
	f := BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfiguration, "parse flags")
	}
	return f.Resolve()
}

// Resolve builds and validates a Config from parsed flags.
func (f *Flags) Resolve() (*Config, error) {
	// .env never overrides variables already in the environment.
	if err := godotenv.Load(*f.envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.CodeInvalidConfiguration, "load env file")
	}

	r := resolver{flags: f}
	cfg := &Config{
		App:    AppConfig{Environment: r.str("ENV")},
		Logger: LoggerConfig{Level: r.str("LOG_LEVEL"), File: r.str("LOG_FILE")},
		Narration: NarrationConfig{
			OutputPath:      r.str("NARRATION_OUTPUT_PATH"),
			DefaultNarrator: domain.Narrator(strings.ToLower(r.str("NARRATION_DEFAULT_NARRATOR"))),
			WordLimit:       r.int("NARRATION_WORD_LIMIT"),
			ChunkRetries:    r.int("NARRATION_CHUNK_RETRIES"),
		},
		Browser: BrowserConfig{
			ChromePath:        r.str("CHROME_PATH"),
			Headless:          r.bool("BROWSER_HEADLESS"),
			StartupTimeout:    r.duration("BROWSER_STARTUP_TIMEOUT"),
			SynthesisTimeout:  r.duration("BROWSER_SYNTHESIS_TIMEOUT"),
			SettleDelay:       r.duration("BROWSER_SETTLE_DELAY"),
			PollInterval:      r.duration("BROWSER_POLL_INTERVAL"),
			SynthesisInterval: r.duration("BROWSER_SYNTHESIS_INTERVAL"),
		},
		Audio: AudioConfig{
			FFmpegPath: r.str("FFMPEG_PATH"),
			SampleRate: r.int("AUDIO_SAMPLE_RATE"),
			Channels:   r.int("AUDIO_CHANNELS"),
			MP3Quality: r.int("AUDIO_MP3_QUALITY"),
			Tolerance:  r.float("AUDIO_TOLERANCE"),
		},
		Server: ServerConfig{
			Port:         r.str("SERVER_PORT"),
			ReadTimeout:  r.duration("SERVER_READ_TIMEOUT"),
			WriteTimeout: r.duration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  r.duration("SERVER_IDLE_TIMEOUT"),
			SubmitRate:   r.int("SERVER_SUBMIT_RATE"),
		},
		Store:     StoreConfig{Path: r.str("STORE_PATH")},
		Worker:    WorkerConfig{MaxConcurrent: r.int("WORKER_MAX_CONCURRENT")},
		Inbox:     InboxConfig{Dir: r.str("INBOX_DIR")},
		Retention: RetentionConfig{MaxAge: r.duration("RETENTION_MAX_AGE")},
		NATS:      NATSConfig{URL: r.str("NATS_URL")},
		Artifacts: ArtifactsConfig{
			Endpoint:  r.str("ARTIFACTS_ENDPOINT"),
			Bucket:    r.str("ARTIFACTS_BUCKET"),
			AccessKey: r.str("ARTIFACTS_ACCESS_KEY"),
			SecretKey: r.str("ARTIFACTS_SECRET_KEY"),
			UseSSL:    r.bool("ARTIFACTS_USE_SSL"),
		},
	}
	if r.err != nil {
		return nil, r.err
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfiguration, "expand paths")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all config values are present and in range.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	default:
		return errors.InvalidConfigurationf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}
	if !logger.ValidLevel(c.Logger.Level) {
		return errors.InvalidConfigurationf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level)
	}
	if !c.Narration.DefaultNarrator.Valid() {
		return errors.InvalidConfigurationf("unknown narrator: %q", c.Narration.DefaultNarrator)
	}
	if c.Narration.WordLimit < 1 {
		return errors.InvalidConfigurationf("word limit must be at least 1, got %d", c.Narration.WordLimit)
	}
	if c.Narration.ChunkRetries < 0 || c.Narration.ChunkRetries > 1 {
		return errors.InvalidConfigurationf("chunk retries must be 0 or 1, got %d", c.Narration.ChunkRetries)
	}

	timeouts := map[string]time.Duration{
		"startup timeout":   c.Browser.StartupTimeout,
		"synthesis timeout": c.Browser.SynthesisTimeout,
		"poll interval":     c.Browser.PollInterval,
		"read timeout":      c.Server.ReadTimeout,
		"write timeout":     c.Server.WriteTimeout,
		"idle timeout":      c.Server.IdleTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return errors.InvalidConfigurationf("%s must be positive, got %s", name, d)
		}
	}
	if c.Browser.SettleDelay < 0 || c.Browser.SynthesisInterval < 0 || c.Retention.MaxAge < 0 {
		return errors.InvalidConfiguration("settle delay, synthesis interval and retention must not be negative")
	}

	if c.Audio.SampleRate <= 0 {
		return errors.InvalidConfigurationf("sample rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return errors.InvalidConfigurationf("channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.MP3Quality < 0 || c.Audio.MP3Quality > 9 {
		return errors.InvalidConfigurationf("mp3 quality must be 0-9, got %d", c.Audio.MP3Quality)
	}
	if c.Audio.Tolerance < 0 {
		return errors.InvalidConfigurationf("tolerance must not be negative, got %g", c.Audio.Tolerance)
	}
	if c.Server.SubmitRate < 0 {
		return errors.InvalidConfigurationf("submit rate must not be negative, got %d", c.Server.SubmitRate)
	}
	if c.Worker.MaxConcurrent < 1 {
		return errors.InvalidConfigurationf("max concurrent must be at least 1, got %d", c.Worker.MaxConcurrent)
	}
	if c.Artifacts.Endpoint != "" && c.Artifacts.Bucket == "" {
		return errors.InvalidConfiguration("artifact bucket is required when an endpoint is set")
	}
	return nil
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	base := filepath.Join(homeDir, "Narrator")

	if c.Narration.OutputPath, err = expandPath(c.Narration.OutputPath, filepath.Join(base, "output")); err != nil {
		return err
	}
	if c.Store.Path, err = expandPath(c.Store.Path, filepath.Join(base, "db")); err != nil {
		return err
	}
	if c.Inbox.Dir, err = expandPath(c.Inbox.Dir, ""); err != nil {
		return err
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty the default is returned as given.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}
	return filepath.Clean(path), nil
}

// resolver applies flag > env > default for each setting and keeps the first parse error.
type resolver struct {
	flags *Flags
	err   error
}

func (r *resolver) str(envKey string) string {
	if v := r.flags.values[envKey]; v != nil && *v != "" {
		return *v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	for _, s := range settings {
		if s.env == envKey {
			return s.def
		}
	}
	return ""
}

func (r *resolver) int(envKey string) int {
	raw := r.str(envKey)
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(envKey, raw, err)
	}
	return n
}

func (r *resolver) float(envKey string) float64 {
	raw := r.str(envKey)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(envKey, raw, err)
	}
	return f
}

// bool accepts "true", "1", "yes" (case-insensitive) as true; anything else is false.
func (r *resolver) bool(envKey string) bool {
	switch strings.ToLower(r.str(envKey)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func (r *resolver) duration(envKey string) time.Duration {
	raw := r.str(envKey)
	if raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(envKey, raw, err)
	}
	return d
}

func (r *resolver) fail(envKey, raw string, err error) {
	if r.err == nil {
		r.err = errors.Wrapf(err, errors.CodeInvalidConfiguration, "invalid %s %q", envKey, raw)
	}
}
