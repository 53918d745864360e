package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/xucian/grabimg/pkg/utils"
)

// Validate checks Config fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *Config) Validate() (warnings []string, err error) {
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if strings.TrimSpace(c.Accept) == "" {
		c.Accept = DefaultAccept
	}
	if strings.ContainsAny(c.UserAgent+c.Accept, "\r\n") {
		return warnings, fmt.Errorf("%w: user_agent and accept must not contain line breaks", utils.ErrConfigValidation)
	}

	// MaxImageSizeBytes
	if c.MaxImageSizeBytes < 0 {
		warnings = append(warnings, "max_image_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxImageSizeBytes = 0
	} else if c.MaxImageSizeBytes == 0 {
		c.MaxImageSizeBytes = DefaultMaxImageSizeBytes
	}

	// MaxHTMLSizeBytes
	if c.MaxHTMLSizeBytes < 0 {
		warnings = append(warnings, "max_html_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxHTMLSizeBytes = 0
	} else if c.MaxHTMLSizeBytes == 0 {
		c.MaxHTMLSizeBytes = DefaultMaxHTMLSizeBytes
	}

	// Concurrency
	if c.Concurrency <= 0 {
		if c.Concurrency < 0 {
			warnings = append(warnings, "concurrency should be > 0, defaulting to 4")
		}
		c.Concurrency = 4
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		if c.MaxRequestsPerHost < 0 {
			warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 2")
		}
		c.MaxRequestsPerHost = 2
	}

	warnings = append(warnings, c.validateHTTPClientSettings()...)

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *Config) validateHTTPClientSettings() (warnings []string) {
	h := &c.HTTPClientSettings
	if h.Timeout < 0 {
		warnings = append(warnings, "http_client_settings.timeout cannot be negative, disabling timeout")
		h.Timeout = 0
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
	return warnings
}
