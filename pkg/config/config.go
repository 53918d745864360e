package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultUserAgent         = "Homemade Browser with Love" // Some servers answer 403 without a User-Agent
	DefaultAccept            = "*/*"                        // Some servers answer 404 without an Accept header
	DefaultMaxImageSizeBytes = 32 << 20
	DefaultMaxHTMLSizeBytes  = 4 << 20
)

// Config holds the settings shared by every stage of the pipeline
type Config struct {
	UserAgent          string           `yaml:"user_agent,omitempty"`
	Accept             string           `yaml:"accept,omitempty"`
	MaxImageSizeBytes  int64            `yaml:"max_image_size_bytes,omitempty"` // 0 = unlimited
	MaxHTMLSizeBytes   int64            `yaml:"max_html_size_bytes,omitempty"`  // 0 = unlimited
	AutoOrient         *bool            `yaml:"auto_orient,omitempty"`          // Apply EXIF orientation on the general decode path
	Concurrency        int              `yaml:"concurrency,omitempty"`          // Parallel URLs in batch mode
	MaxRequestsPerHost int              `yaml:"max_requests_per_host,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout (0 = none, callers bound time with the context)
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`           // HTTP-level redirects only
}

// Default returns a validated zero config
func Default() Config {
	var cfg Config
	cfg.Validate()
	return cfg
}

// Load reads a YAML config file and applies defaults.
// Returns the config along with any validation warnings.
func Load(path string) (Config, []string, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("read config '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, nil, fmt.Errorf("parse config '%s': %w", path, err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return cfg, warnings, err
	}
	return cfg, warnings, nil
}

// EffectiveAutoOrient returns the auto_orient setting, defaulting to true
func (c Config) EffectiveAutoOrient() bool {
	if c.AutoOrient != nil {
		return *c.AutoOrient
	}
	return true
}
