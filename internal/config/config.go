// Package config provides configuration management for the JustLog client.
// It handles loading and parsing the YAML configuration file and provides
// structured access to the identity provider settings, API base URL, auth
// directory, and proxy configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default identity provider settings. The domain and client id identify the
// hosted login for the JustLog backend; overriding them in the config file
// points the client at another deployment.
const (
	DefaultAuthDomain       = "https://justlog.auth.us-east-1.amazoncognito.com"
	DefaultClientID         = "11h4ggbj2m9hehirq0n7hcq5m8"
	DefaultScopes           = "openid email profile"
	DefaultIdentityProvider = "Google"
	DefaultAPIBaseURL       = "https://k24xsd279c.execute-api.us-east-1.amazonaws.com"
	DefaultCallbackPort     = 54545
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// AuthDir is the directory where credentials are persisted.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// RequestLog enables or disables detailed request logging functionality.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// LogDir, when set, routes logs to rotating files under this directory
	// instead of stderr only.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// APIBaseURL is the base URL of the JustLog backend API.
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`

	// Auth configures the identity provider used for login.
	Auth AuthConfig `yaml:"auth" json:"auth"`
}

// AuthConfig holds the identity provider settings for the PKCE login flow.
type AuthConfig struct {
	// Domain is the base URL of the hosted identity provider
	// (its /oauth2/authorize and /oauth2/token endpoints hang off it).
	Domain string `yaml:"domain" json:"domain"`

	// ClientID is the OAuth client identifier registered for this app.
	ClientID string `yaml:"client-id" json:"client-id"`

	// Scopes is the space-separated scope list requested at login.
	Scopes string `yaml:"scopes" json:"scopes"`

	// IdentityProvider is the fixed upstream provider hint forwarded to the
	// hosted login page.
	IdentityProvider string `yaml:"identity-provider" json:"identity-provider"`

	// CallbackPort is the local port the login callback server listens on.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`
}

// LoadConfig reads the YAML configuration from the given path and applies
// defaults for unset fields. A missing file is not an error; the defaults
// alone describe a working client.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills unset fields with the built-in deployment settings.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.AuthDir) == "" {
		c.AuthDir = defaultAuthDir()
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if strings.TrimSpace(c.Auth.Domain) == "" {
		c.Auth.Domain = DefaultAuthDomain
	}
	if strings.TrimSpace(c.Auth.ClientID) == "" {
		c.Auth.ClientID = DefaultClientID
	}
	if strings.TrimSpace(c.Auth.Scopes) == "" {
		c.Auth.Scopes = DefaultScopes
	}
	if strings.TrimSpace(c.Auth.IdentityProvider) == "" {
		c.Auth.IdentityProvider = DefaultIdentityProvider
	}
	if c.Auth.CallbackPort <= 0 {
		c.Auth.CallbackPort = DefaultCallbackPort
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	c.Auth.Domain = strings.TrimRight(c.Auth.Domain, "/")
}

// RedirectURI returns the callback URI registered for the login flow:
// the local origin plus the fixed callback path.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/auth/callback/", c.Auth.CallbackPort)
}

func defaultAuthDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".justlog"
	}
	return filepath.Join(home, ".justlog")
}
