// Package config provides configuration management for the newsroom CLI.
// It handles loading and parsing YAML configuration files and provides
// structured access to application settings including the backend API base
// URL, hosted-UI authentication settings, proxy configuration, and the
// locations of persisted credential files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default endpoints for thenewspaper.site. Every value can be overridden
// from the YAML config file or the matching NEWSROOM_* environment variable.
const (
	DefaultAPIBaseURL = "https://api.thenewspaper.site"
	DefaultAuthDomain = "https://thenewsroom-auth-1763795763.auth.us-east-1.amazoncognito.com"
	DefaultClientID   = "2shion39m0mim70d0etbtp0eh9"
	DefaultLogoutURI  = "https://thenewspaper.site/"

	// DefaultCallbackPort is the localhost port the login flow listens on
	// for the authorization-code redirect.
	DefaultCallbackPort = 8585
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// APIBaseURL is the base URL of the subscription backend API.
	APIBaseURL string `yaml:"api-base-url"`

	// Auth holds the hosted-UI OAuth2 settings.
	Auth AuthConfig `yaml:"auth"`

	// ProxyURL is the URL of an optional proxy server to use for outbound
	// requests. Supports socks5://, http:// and https:// schemes.
	ProxyURL string `yaml:"proxy-url"`

	// TokenFile is the path of the persisted token bundle. Defaults to
	// ~/.newsroom/tokens.json.
	TokenFile string `yaml:"token-file"`

	// VerifierFile is the path of the one-shot PKCE verifier stash.
	// Defaults to ~/.newsroom/pkce-verifier.
	VerifierFile string `yaml:"verifier-file"`

	// LoggingToFile redirects logs to rotated files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// LogDir is the directory for rotated log files. Defaults to
	// ~/.newsroom/logs.
	LogDir string `yaml:"log-dir"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// AuthConfig holds the identity-provider settings for the hosted UI.
type AuthConfig struct {
	// Domain is the base URL of the hosted authentication UI.
	Domain string `yaml:"domain"`

	// ClientID is the OAuth2 client identifier.
	ClientID string `yaml:"client-id"`

	// LogoutURI is where the hosted UI sends the browser after logout.
	LogoutURI string `yaml:"logout-uri"`

	// CallbackPort is the localhost port for the authorization-code
	// redirect during login.
	CallbackPort int `yaml:"callback-port"`
}

// RedirectURI returns the redirect target registered for the login flow,
// derived from the callback port.
func (a AuthConfig) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", a.CallbackPort)
}

// AuthorizeURL returns the hosted UI authorization endpoint.
func (a AuthConfig) AuthorizeURL() string {
	return a.Domain + "/oauth2/authorize"
}

// TokenURL returns the hosted UI token-exchange endpoint.
func (a AuthConfig) TokenURL() string {
	return a.Domain + "/oauth2/token"
}

// LogoutURL returns the hosted UI logout endpoint.
func (a AuthConfig) LogoutURL() string {
	return a.Domain + "/logout"
}

// LoadConfig reads a YAML configuration file from the given path and applies
// defaults for any unset field. A missing file is not an error; the returned
// configuration then carries defaults only.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configFile)
	if err == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, errUnmarshal)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEWSROOM_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("NEWSROOM_AUTH_DOMAIN"); v != "" {
		c.Auth.Domain = v
	}
	if v := os.Getenv("NEWSROOM_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("NEWSROOM_PROXY_URL"); v != "" {
		c.ProxyURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Auth.Domain == "" {
		c.Auth.Domain = DefaultAuthDomain
	}
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = DefaultClientID
	}
	if c.Auth.LogoutURI == "" {
		c.Auth.LogoutURI = DefaultLogoutURI
	}
	if c.Auth.CallbackPort <= 0 {
		c.Auth.CallbackPort = DefaultCallbackPort
	}

	stateDir := defaultStateDir()
	if c.TokenFile == "" {
		c.TokenFile = filepath.Join(stateDir, "tokens.json")
	}
	if c.VerifierFile == "" {
		c.VerifierFile = filepath.Join(stateDir, "pkce-verifier")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(stateDir, "logs")
	}
}

// defaultStateDir returns the per-user directory holding credentials and
// logs. Falls back to the working directory when the home directory cannot
// be resolved.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".newsroom"
	}
	return filepath.Join(home, ".newsroom")
}
