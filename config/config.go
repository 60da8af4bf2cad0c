// Package config provides environment-based configuration for the portal
// session engine and its shells.
//
// Configuration is loaded from environment variables using Viper, with an
// optional portal.yaml in the working directory. Environment variables take
// precedence over the file.
//
// # Environment Variables
//
//   - API_BASE_URL: Portal REST API base URL. Default: http://localhost:5000/api
//   - HTTP_TIMEOUT: Timeout for backend calls. Default: 30s
//   - STORE_TYPE: Session store backend (memory, file, sqlite, postgres, mysql, redis). Default: file
//   - STORE_DSN: Store location (file path, database DSN or redis URL). Default: portal-session.json
//   - REVALIDATE_ON_BOOTSTRAP: Check a restored session against the backend. Default: true
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: Shell HTTP port. Default: 8080
//
// # Federated Sign-In
//
//	OIDC_ISSUER=https://accounts.google.com
//	OIDC_CLIENT_ID=your-client-id
//	OIDC_CLIENT_SECRET=your-secret
//	OIDC_REDIRECT_URL=http://localhost:8080/auth/callback
//
// Federated sign-in is disabled when OIDC_ISSUER is empty.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL            string        `mapstructure:"API_BASE_URL"`
	HTTPTimeout           time.Duration `mapstructure:"HTTP_TIMEOUT"`
	StoreType             string        `mapstructure:"STORE_TYPE"`
	StoreDSN              string        `mapstructure:"STORE_DSN"`
	RevalidateOnBootstrap bool          `mapstructure:"REVALIDATE_ON_BOOTSTRAP"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	Port                  int           `mapstructure:"PORT"`

	OIDCIssuer       string `mapstructure:"OIDC_ISSUER"`
	OIDCClientID     string `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `mapstructure:"OIDC_REDIRECT_URL"`
}

type OIDCProvider struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OIDC returns the federated provider settings and whether they are set.
func (c *Config) OIDC() (OIDCProvider, bool) {
	p := OIDCProvider{
		Issuer:       c.OIDCIssuer,
		ClientID:     c.OIDCClientID,
		ClientSecret: c.OIDCClientSecret,
		RedirectURL:  c.OIDCRedirectURL,
	}
	return p, p.Issuer != ""
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("STORE_TYPE", "file")
	v.SetDefault("STORE_DSN", "portal-session.json")
	v.SetDefault("REVALIDATE_ON_BOOTSTRAP", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	// Unset keys still need a default for AutomaticEnv to pick them up.
	v.SetDefault("OIDC_ISSUER", "")
	v.SetDefault("OIDC_CLIENT_ID", "")
	v.SetDefault("OIDC_CLIENT_SECRET", "")
	v.SetDefault("OIDC_REDIRECT_URL", "")

	v.SetConfigName("portal")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
