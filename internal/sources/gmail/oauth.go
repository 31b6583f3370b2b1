// Package gmail implements the mailbox event source over the Gmail API.
package gmail

import (
	"context"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// OAuthConfig holds Google OAuth configuration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// DefaultOAuthConfig returns config from environment
func DefaultOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  "http://localhost:8765/callback",
		Scopes: []string{
			gmail.GmailReadonlyScope,
		},
	}
}

// OAuthFlow handles the OAuth2 authentication flow
type OAuthFlow struct {
	config *oauth2.Config
}

// NewOAuthFlow creates a new OAuth flow handler
func NewOAuthFlow(cfg OAuthConfig) *OAuthFlow {
	return &OAuthFlow{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// GetAuthURL returns the URL for user authorization
func (f *OAuthFlow) GetAuthURL(state string) string {
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for tokens
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return f.config.Exchange(ctx, code)
}

// RefreshToken refreshes an expired token
func (f *OAuthFlow) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	tokenSource := f.config.TokenSource(ctx, token)
	return tokenSource.Token()
}

// CreateService creates a Gmail API service from a token
func (f *OAuthFlow) CreateService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	client := f.config.Client(ctx, token)
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}
