package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// OAuthClientConfig is the Google "installed application" client file downloaded from the
// cloud console. It is only needed when the Sheets directory or Gmail notifications are enabled.
type OAuthClientConfig struct {
	Installed OAuthInstalled `json:"installed" validate:"required"`
}

type OAuthInstalled struct {
	ClientID                string   `json:"client_id" validate:"required"`
	ProjectID               string   `json:"project_id" validate:"required"`
	AuthURI                 string   `json:"auth_uri" validate:"required,url"`
	TokenURI                string   `json:"token_uri" validate:"required,url"`
	AuthProviderX509CertURL string   `json:"auth_provider_x509_cert_url" validate:"required,url"`
	ClientSecret            string   `json:"client_secret" validate:"required"`
	RedirectURIs            []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`
}

// NeedsGoogle reports whether any configured component talks to Google APIs
func (c *Config) NeedsGoogle() bool {
	return c.RadiologistSheetID != "" || c.Notifications.Enabled
}

// LoadOAuthClientWithEnv loads oauthClient.<env>.json, falling back to oauthClient.json
func LoadOAuthClientWithEnv(env string) (*OAuthClientConfig, error) {
	names := []string{"oauthClient.json"}
	if env != "" {
		names = []string{"oauthClient." + env + ".json", "oauthClient.json"}
	}

	path, err := findFile(names)
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth client file: %w", err)
	}

	return LoadOAuthClientFromPath(path)
}

// LoadOAuthClientFromPath reads and validates a client file
func LoadOAuthClientFromPath(path string) (*OAuthClientConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open oauth client file: %w", err)
	}
	defer f.Close()

	cfg := &OAuthClientConfig{}
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse oauth client file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *OAuthClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("oauth client validation failed: %w", err)
	}
	return nil
}
