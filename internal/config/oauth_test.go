package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOAuthClient() *OAuthClientConfig {
	return &OAuthClientConfig{
		Installed: OAuthInstalled{
			ClientID:                "radflow.apps.googleusercontent.com",
			ProjectID:               "radflow",
			AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
			TokenURI:                "https://oauth2.googleapis.com/token",
			AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
			ClientSecret:            "secret",
			RedirectURIs:            []string{"http://localhost"},
		},
	}
}

func TestOAuthClientConfig_Validate(t *testing.T) {
	assert.NoError(t, validOAuthClient().Validate())

	missingID := validOAuthClient()
	missingID.Installed.ClientID = ""
	assert.ErrorContains(t, missingID.Validate(), "validation failed")

	badURL := validOAuthClient()
	badURL.Installed.AuthURI = "not-a-valid-url"
	assert.ErrorContains(t, badURL.Validate(), "validation failed")

	noRedirects := validOAuthClient()
	noRedirects.Installed.RedirectURIs = nil
	assert.ErrorContains(t, noRedirects.Validate(), "validation failed")
}

func TestLoadOAuthClientFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauthClient.test.json")
	content := `{"installed":{"client_id":"radflow.apps.googleusercontent.com","project_id":"radflow",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"auth_provider_x509_cert_url":"https://www.googleapis.com/oauth2/v1/certs","client_secret":"secret",
"redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadOAuthClientFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "radflow", cfg.Installed.ProjectID)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	_, err = LoadOAuthClientFromPath(path)
	assert.ErrorContains(t, err, "failed to parse oauth client file")
}
