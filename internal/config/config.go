package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"go-best-shot/internal/scoring"
	"go-best-shot/pkg/validation"
)

const (
	// EnvPrefix is stripped from environment variables; "__" separates levels
	EnvPrefix = "BESTSHOT_"

	// ConfigPathEnvVar points at an optional YAML file
	ConfigPathEnvVar = "CONFIG_PATH"
)

// DefaultConfigPaths are searched when CONFIG_PATH is not set
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	PhotoAPI PhotoAPIConfig `koanf:"photo_api"`
	Source   SourceConfig   `koanf:"source"`
	Scoring  ScoringConfig  `koanf:"scoring"`
	Resolver ResolverConfig `koanf:"resolver"`
	Effects  EffectsConfig  `koanf:"effects"`
}

type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               string        `koanf:"port"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	MaxRequestBodySize int64         `koanf:"max_request_body_size"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PhotoAPIConfig configures the remote photo-management service client
type PhotoAPIConfig struct {
	BaseURL         string        `koanf:"base_url"`
	APIKey          string        `koanf:"api_key"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	RatePerSecond   float64       `koanf:"rate_per_second"`
	Burst           int           `koanf:"burst"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// SourceConfig selects where previews, metadata and groups come from
type SourceConfig struct {
	Assets   string `koanf:"assets"`   // photoapi | http | azure | file
	Metadata string `koanf:"metadata"` // photoapi | static | none
	Groups   string `koanf:"groups"`   // photoapi | sqlite

	HTTPBaseURL     string `koanf:"http_base_url"`
	MaxPreviewBytes int64  `koanf:"max_preview_bytes"`
	Dir             string `koanf:"dir"`
	MetadataPath    string `koanf:"metadata_path"`
	SQLitePath      string `koanf:"sqlite_path"`

	AzureAccount   string `koanf:"azure_account"`
	AzureKey       string `koanf:"azure_key"`
	AzureContainer string `koanf:"azure_container"`
	AzurePrefix    string `koanf:"azure_prefix"`
}

type ScoringConfig struct {
	Weights      scoring.ScoreWeights `koanf:"weights"`
	SkipDegraded bool                 `koanf:"skip_degraded"`
}

type ResolverConfig struct {
	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
	Concurrency      int           `koanf:"concurrency"`
	GroupConcurrency int           `koanf:"group_concurrency"`
	MaxPixels        int           `koanf:"max_pixels"`
}

type EffectsConfig struct {
	Mode            string `koanf:"mode"`
	DryRun          bool   `koanf:"dry_run"`
	ProtectFailed   bool   `koanf:"protect_failed"`
	WinnerAlbum     string `koanf:"winner_album"`
	AlternatesAlbum string `koanf:"alternates_album"`
}

var (
	assetSources    = []string{"photoapi", "http", "azure", "file"}
	metadataSources = []string{"photoapi", "static", "none"}
	groupSources    = []string{"photoapi", "sqlite"}
	effectModes     = []string{"favorite", "hide", "delete", "albums", "none"}
)

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Server.Host)
	port := strings.TrimSpace(c.Server.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               "8080",
			RequestTimeout:     30 * time.Second,
			ShutdownTimeout:    30 * time.Second,
			MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		PhotoAPI: PhotoAPIConfig{
			RequestTimeout:  30 * time.Second,
			RatePerSecond:   20,
			Burst:           10,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Source: SourceConfig{
			Assets:          "photoapi",
			Metadata:        "photoapi",
			Groups:          "photoapi",
			MaxPreviewBytes: 32 * 1024 * 1024,
			SQLitePath:      "bestshot.db",
		},
		Scoring: ScoringConfig{
			Weights:      scoring.DefaultWeights(),
			SkipDegraded: true,
		},
		Resolver: ResolverConfig{
			FetchTimeout:     15 * time.Second,
			Concurrency:      4,
			GroupConcurrency: 2,
			MaxPixels:        64 * 1024 * 1024,
		},
		Effects: EffectsConfig{
			Mode:            "favorite",
			DryRun:          true,
			ProtectFailed:   true,
			WinnerAlbum:     "Best Shots",
			AlternatesAlbum: "Duplicates",
		},
	}
}

// Load layers defaults, an optional YAML file and BESTSHOT_ environment
// variables, in increasing priority. An empty path searches CONFIG_PATH and
// DefaultConfigPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// BESTSHOT_RESOLVER__FETCH_TIMEOUT -> resolver.fetch_timeout
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Server.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid server.port: %q", c.Server.Port)
	}
	if c.Server.MaxRequestBodySize <= 0 {
		return fmt.Errorf("server.max_request_body_size must be > 0 (got %d)", c.Server.MaxRequestBodySize)
	}
	if c.Server.RequestTimeout <= 0 || c.Resolver.FetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			c.Server.RequestTimeout, c.Resolver.FetchTimeout)
	}
	if c.Resolver.Concurrency <= 0 || c.Resolver.GroupConcurrency <= 0 {
		return fmt.Errorf("resolver concurrency must be > 0 (got assets=%d, groups=%d)",
			c.Resolver.Concurrency, c.Resolver.GroupConcurrency)
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring.weights: %w", err)
	}

	if !oneOf(c.Source.Assets, assetSources) {
		return fmt.Errorf("source.assets must be one of %v (got %q)", assetSources, c.Source.Assets)
	}
	if !oneOf(c.Source.Metadata, metadataSources) {
		return fmt.Errorf("source.metadata must be one of %v (got %q)", metadataSources, c.Source.Metadata)
	}
	if !oneOf(c.Source.Groups, groupSources) {
		return fmt.Errorf("source.groups must be one of %v (got %q)", groupSources, c.Source.Groups)
	}
	if !oneOf(c.Effects.Mode, effectModes) {
		return fmt.Errorf("effects.mode must be one of %v (got %q)", effectModes, c.Effects.Mode)
	}

	urls := validation.NewURLValidator()
	if c.UsesPhotoAPI() {
		if err := urls.ValidateBaseURL(c.PhotoAPI.BaseURL); err != nil {
			return fmt.Errorf("photo_api.base_url is required when the photo service is a source or effects target: %w", err)
		}
	}
	if c.Source.Assets == "http" {
		if err := urls.ValidateBaseURL(c.Source.HTTPBaseURL); err != nil {
			return fmt.Errorf("source.http_base_url is required for http assets: %w", err)
		}
	}
	if c.Source.Assets == "azure" && (c.Source.AzureAccount == "" || c.Source.AzureContainer == "") {
		return fmt.Errorf("source.azure_account and source.azure_container are required for azure assets")
	}
	if c.Source.Assets == "file" && c.Source.Dir == "" {
		return fmt.Errorf("source.dir is required for file assets")
	}
	if c.Source.Metadata == "static" && c.Source.MetadataPath == "" {
		return fmt.Errorf("source.metadata_path is required for static metadata")
	}
	if c.Effects.Mode == "albums" && (c.Effects.WinnerAlbum == "" || c.Effects.AlternatesAlbum == "") {
		return fmt.Errorf("effects.winner_album and effects.alternates_album are required for albums mode")
	}
	return nil
}

// UsesPhotoAPI reports whether any component talks to the photo service
func (c *Config) UsesPhotoAPI() bool {
	return c.Source.Assets == "photoapi" ||
		c.Source.Metadata == "photoapi" ||
		c.Source.Groups == "photoapi" ||
		c.Effects.Mode != "none"
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
