package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/Kll222/tmdb-tracker/internal/credentials"
	"github.com/Kll222/tmdb-tracker/internal/export"
	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/store"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

// Sink names.
const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkExport   = "export"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

func homeDirOrFallback() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Config holds all user-configurable settings.
type Config struct {
	// BaseURL is the TMDB API root.
	BaseURL string `json:"base_url"`
	// ImageBaseURL and PosterSize build poster URLs.
	ImageBaseURL string `json:"image_base_url"`
	PosterSize   string `json:"poster_size"`
	// PrimaryLocale is used for discovery, SecondaryLocale for detail lookups.
	PrimaryLocale   string `json:"primary_locale"`
	SecondaryLocale string `json:"secondary_locale"`
	// MediaKinds lists the kinds processed per run, in order.
	MediaKinds []string `json:"media_kinds"`
	// WindowDays is the length of the "recently released" window.
	WindowDays int `json:"window_days"`
	// PinWindow computes the window once per run instead of on every request.
	PinWindow bool `json:"pin_window"`
	// Retention prunes rows older than RetentionDays before each relational write.
	Retention     bool `json:"retention"`
	RetentionDays int  `json:"retention_days"`
	// MaxPages caps pagination per kind.
	MaxPages int `json:"max_pages"`
	// RespectTotalPages stops paging at the reported total_pages.
	RespectTotalPages bool `json:"respect_total_pages"`
	// RequestIntervalMS is the fixed pause between API requests.
	RequestIntervalMS int `json:"request_interval_ms"`
	// HTTPTimeoutSeconds bounds each API call.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`
	// UnknownGenre is "drop" or "placeholder".
	UnknownGenre string `json:"unknown_genre"`
	// KeyScope is "id" or "id_media".
	KeyScope string `json:"key_scope"`
	// Sink is "sqlite", "postgres" or "export".
	Sink        string `json:"sink"`
	DBPath      string `json:"db_path"`
	PostgresDSN string `json:"postgres_dsn"`
	ExportPath  string `json:"export_path"`
	// APIKeyEnv and APIKeyFile locate the TMDB key; the environment wins.
	APIKeyEnv  string `json:"api_key_env"`
	APIKeyFile string `json:"api_key_file"`
	// PosterDir is where `posters` mirrors images.
	PosterDir string `json:"poster_dir"`
	LogLevel  string `json:"log_level"`
	// LogFile enables a rotating JSON log file in addition to stderr.
	LogFile string `json:"log_file"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            tmdb.DefaultBaseURL,
		ImageBaseURL:       media.DefaultImageBaseURL,
		PosterSize:         media.DefaultPosterSize,
		PrimaryLocale:      "en-US",
		SecondaryLocale:    "zh-CN",
		MediaKinds:         []string{string(tmdb.Movie), string(tmdb.TV)},
		WindowDays:         3,
		Retention:          true,
		RetentionDays:      3,
		MaxPages:           tmdb.MaxPages,
		RespectTotalPages:  true,
		RequestIntervalMS:  200,
		HTTPTimeoutSeconds: 10,
		UnknownGenre:       string(media.DropUnknown),
		KeyScope:           string(store.KeyID),
		Sink:               SinkSQLite,
		DBPath:             filepath.Join(ConfigDir(), "media_data.db"),
		ExportPath:         export.DefaultPath,
		APIKeyEnv:          credentials.DefaultEnvVar,
		APIKeyFile:         credentials.DefaultKeyFile,
		PosterDir:          filepath.Join(ConfigDir(), "posters"),
		LogLevel:           "info",
	}
}

// ConfigDir returns the directory where config and data files are stored.
func ConfigDir() string {
	if dir := os.Getenv("TMDB_TRACKER_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDirOrFallback()
	return filepath.Join(home, ".config", "tmdb-tracker")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads config from disk, writing defaults if the file doesn't exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigPath(), err)
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// Validate checks enumerations, ranges and locale tags, and canonicalises the
// locale tags in place.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	for _, loc := range []*string{&c.PrimaryLocale, &c.SecondaryLocale} {
		tag, err := language.Parse(*loc)
		if err != nil {
			fail("locale %q: %v", *loc, err)
			continue
		}
		*loc = tag.String()
	}
	if len(c.MediaKinds) == 0 {
		fail("media_kinds is empty")
	}
	if _, err := c.Kinds(); err != nil {
		fail("%v", err)
	}
	if c.WindowDays < 1 {
		fail("window_days must be >= 1, got %d", c.WindowDays)
	}
	if c.Retention && c.RetentionDays < 1 {
		fail("retention_days must be >= 1, got %d", c.RetentionDays)
	}
	if c.MaxPages < 1 || c.MaxPages > tmdb.MaxPages {
		fail("max_pages must be in 1..%d, got %d", tmdb.MaxPages, c.MaxPages)
	}
	if c.RequestIntervalMS < 0 {
		fail("request_interval_ms must be >= 0")
	}
	if c.HTTPTimeoutSeconds < 1 {
		fail("http_timeout_seconds must be >= 1")
	}
	switch media.GenrePolicy(c.UnknownGenre) {
	case media.DropUnknown, media.PlaceholderUnknown:
	default:
		fail("unknown_genre must be drop or placeholder, got %q", c.UnknownGenre)
	}
	switch store.KeyScope(c.KeyScope) {
	case store.KeyID, store.KeyIDMedia:
	default:
		fail("key_scope must be id or id_media, got %q", c.KeyScope)
	}
	switch c.Sink {
	case SinkSQLite:
		if c.DBPath == "" {
			fail("db_path is required for the sqlite sink")
		}
	case SinkPostgres:
		if c.PostgresDSN == "" {
			fail("postgres_dsn is required for the postgres sink")
		}
	case SinkExport:
		if c.ExportPath == "" {
			fail("export_path is required for the export sink")
		}
	default:
		fail("sink must be sqlite, postgres or export, got %q", c.Sink)
	}
	return errors.Join(errs...)
}

// Kinds parses MediaKinds.
func (c *Config) Kinds() ([]tmdb.Kind, error) {
	kinds := make([]tmdb.Kind, 0, len(c.MediaKinds))
	for _, s := range c.MediaKinds {
		k, err := tmdb.ParseKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Relational reports whether the configured sink is a database.
func (c *Config) Relational() bool {
	return c.Sink == SinkSQLite || c.Sink == SinkPostgres
}

// Database returns the store driver and DSN for the configured sink. For the
// export sink it falls back to the SQLite file so read-only commands work.
func (c *Config) Database() (driver, dsn string) {
	if c.Sink == SinkPostgres {
		return store.DriverPostgres, c.PostgresDSN
	}
	return store.DriverSQLite, c.DBPath
}

// RequestInterval returns RequestIntervalMS as a duration.
func (c *Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMS) * time.Millisecond
}

// HTTPTimeout returns HTTPTimeoutSeconds as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Credentials returns the API key provider: environment first, then file.
func (c *Config) Credentials() credentials.Provider {
	return credentials.Chain{
		credentials.Env{Var: c.APIKeyEnv},
		credentials.File{Path: c.APIKeyFile},
	}
}

// SetKinds replaces MediaKinds from a comma-separated list.
func (c *Config) SetKinds(list string) {
	var kinds []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, part)
		}
	}
	c.MediaKinds = kinds
}
