// Package config loads and validates environment-based settings.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix shared by every settings variable, e.g.
// XPISIGN_API_KEY.
const EnvPrefix = "xpisign"

// Settings holds everything the tool reads from the environment. Credentials
// belong here rather than on the command line so they stay out of shell
// history; flags still override individual values.
type Settings struct {
	// APIKey is the JWT issuer for the signing API.
	APIKey string `split_words:"true"`

	// APISecret is the JWT signing secret for the signing API.
	APISecret string `split_words:"true"`

	// BaseURL is the signing API root.
	BaseURL string `split_words:"true" default:"https://addons.mozilla.org/api/v4"`

	// Proxy is an optional proxy server URL for all API traffic.
	Proxy string

	// RequestTimeout bounds each individual HTTP request.
	RequestTimeout time.Duration `split_words:"true" default:"30s"`

	// PollInterval is the delay between upload status polls.
	PollInterval time.Duration `split_words:"true" default:"1s"`

	// SigningTimeout bounds the whole wait for validation and signing.
	SigningTimeout time.Duration `split_words:"true" default:"5m"`

	// JWTExpiresIn is the auth token lifetime. The service caps accepted
	// lifetimes, so keep this short.
	JWTExpiresIn time.Duration `envconfig:"JWT_EXPIRES_IN" default:"5m"`

	// DownloadDir receives signed files; empty means the working directory.
	DownloadDir string `split_words:"true"`
}

// Load reads settings from the environment and validates them.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("read environment settings: %w", err)
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate enforces settings invariants. Credentials are allowed to be empty
// here: whether they are required depends on the command being run.
func Validate(s Settings) error {
	base := strings.TrimSpace(s.BaseURL)
	if base == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("base_url %q is not a valid URL", s.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsed.Scheme)
	}

	if s.Proxy != "" {
		proxyURL, err := url.Parse(s.Proxy)
		if err != nil || proxyURL.Scheme == "" || proxyURL.Host == "" {
			return fmt.Errorf("proxy %q is not a valid URL", s.Proxy)
		}
	}

	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	if s.SigningTimeout <= 0 {
		return fmt.Errorf("signing_timeout must be > 0")
	}
	if s.JWTExpiresIn <= 0 {
		return fmt.Errorf("jwt_expires_in must be > 0")
	}

	return nil
}
