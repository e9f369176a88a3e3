package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/radflow/internal/config"
)

const (
	AuthPort     = 3000
	authTimeout  = 5 * time.Minute
	callbackPath = "/oauth/callback"
	tokenDirName = ".radflow/tokens"
)

// OAuth scopes requested up front so one token serves both the roster sheet and notifications
const (
	ScopeSheetsReadonly = "https://www.googleapis.com/auth/spreadsheets.readonly"
	ScopeGmailSend      = "https://www.googleapis.com/auth/gmail.send"
)

var Scopes = []string{ScopeSheetsReadonly, ScopeGmailSend}

// GetOAuthConfig builds the oauth2 config for the installed-app client, redirecting to the
// local callback listener.
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	raw, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}
	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)
	return googleConfig, nil
}

// storedToken is the on-disk token record. Granted scopes are kept alongside the token because
// refreshed tokens no longer carry them.
type storedToken struct {
	Token  *oauth2.Token `json:"token"`
	Scopes []string      `json:"scopes"`
}

func (s storedToken) missingScopes() []string {
	var missing []string
	for _, scope := range Scopes {
		if !slices.Contains(s.Scopes, scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// TokenStore persists one token per environment under a directory
type TokenStore struct {
	Dir string
}

// DefaultTokenStore stores tokens under ~/.radflow/tokens
func DefaultTokenStore() (*TokenStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &TokenStore{Dir: filepath.Join(home, tokenDirName)}, nil
}

func (s *TokenStore) path(env string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("token-%s.json", env))
}

// Load returns nil without error when no token has been stored for env
func (s *TokenStore) Load(env string) (*storedToken, error) {
	data, err := os.ReadFile(s.path(env))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var stored storedToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if stored.Token == nil {
		return nil, fmt.Errorf("token file %s has no token", s.path(env))
	}
	return &stored, nil
}

func (s *TokenStore) Save(env string, stored storedToken) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.path(env), data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete(env string) error {
	if err := os.Remove(s.path(env)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// Authorizer hands out a token for the environment, running the browser consent flow only when
// no usable stored token exists. Safe for concurrent use.
type Authorizer struct {
	config *oauth2.Config
	store  *TokenStore
	env    string
	logger *zap.Logger

	mu     sync.Mutex
	cached *oauth2.Token
}

func NewAuthorizer(oauthConfig *oauth2.Config, store *TokenStore, env string, logger *zap.Logger) *Authorizer {
	return &Authorizer{config: oauthConfig, store: store, env: env, logger: logger}
}

// Token returns a valid token with every required scope
func (a *Authorizer) Token(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil && a.cached.Valid() {
		return a.cached, nil
	}

	if token := a.fromStore(ctx); token != nil {
		a.cached = token
		return token, nil
	}

	token, err := a.consent(ctx)
	if err != nil {
		return nil, err
	}
	a.cached = token
	return token, nil
}

// fromStore returns the stored token, refreshed if needed, or nil when a new consent is required
func (a *Authorizer) fromStore(ctx context.Context) *oauth2.Token {
	stored, err := a.store.Load(a.env)
	if err != nil {
		a.logger.Warn("Ignoring unreadable token file", zap.Error(err))
		return nil
	}
	if stored == nil {
		return nil
	}

	if missing := stored.missingScopes(); len(missing) > 0 {
		a.logger.Info("Stored token lacks required scopes, re-authorising", zap.Strings("missing", missing))
		if err := a.store.Delete(a.env); err != nil {
			a.logger.Warn("Failed to delete stale token", zap.Error(err))
		}
		return nil
	}

	if stored.Token.Valid() {
		return stored.Token
	}
	if stored.Token.RefreshToken == "" {
		return nil
	}

	refreshed, err := a.config.TokenSource(ctx, stored.Token).Token()
	if err != nil {
		a.logger.Warn("Token refresh failed, re-authorising", zap.Error(err))
		return nil
	}
	if err := a.store.Save(a.env, storedToken{Token: refreshed, Scopes: stored.Scopes}); err != nil {
		a.logger.Warn("Failed to save refreshed token", zap.Error(err))
	}
	a.logger.Debug("Token refreshed")
	return refreshed
}

func (a *Authorizer) consent(ctx context.Context) (*oauth2.Token, error) {
	state := fmt.Sprintf("radflow-%d", time.Now().UnixNano())
	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("\nVisit this URL to authorize radflow:\n%s\n\n", authURL)

	code, err := awaitCallback(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	granted := Scopes
	if scope, ok := token.Extra("scope").(string); ok {
		granted = strings.Fields(scope)
	}
	stored := storedToken{Token: token, Scopes: granted}
	if missing := stored.missingScopes(); len(missing) > 0 {
		return nil, fmt.Errorf("token is missing required scopes %v; grant every permission during consent", missing)
	}

	if err := a.store.Save(a.env, stored); err != nil {
		a.logger.Warn("Failed to save token", zap.Error(err))
	}
	return token, nil
}

// awaitCallback serves the redirect target on AuthPort until one code arrives
func awaitCallback(ctx context.Context, state string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	result := make(chan string, 1)
	failure := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "Authorization state mismatch", http.StatusBadRequest)
			return
		}
		code := query.Get("code")
		if code == "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			select {
			case failure <- fmt.Errorf("no authorization code received: %s", query.Get("error")):
			default:
			}
			return
		}
		fmt.Fprint(w, "radflow is authorised. You can close this window.")
		select {
		case result <- code:
		default:
		}
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", AuthPort))
	if err != nil {
		return "", fmt.Errorf("failed to listen for oauth callback: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(listener)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	select {
	case code := <-result:
		return code, nil
	case err := <-failure:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}
