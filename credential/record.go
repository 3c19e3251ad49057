package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/replybot/config"
)

var (
	// ErrNoToken means no token record was provisioned anywhere.
	ErrNoToken = errors.New("no gmail token configured")
	// ErrTokenUnusable means the access token is missing or expired and
	// there is no refresh token to obtain a new one.
	ErrTokenUnusable = errors.New("gmail token is expired and has no refresh token")
)

// Record is the authorized-user token record for the Gmail account.
type Record struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// IsZero reports whether the record carries no token material at all.
func (r Record) IsZero() bool {
	return r.Token == "" && r.RefreshToken == ""
}

// OAuthConfig builds the client configuration used to refresh the token.
func (r Record) OAuthConfig() *oauth2.Config {
	tokenURL := r.TokenURI
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}
	scopes := r.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmail.GmailModifyScope}
	}
	return &oauth2.Config{
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: tokenURL,
		},
		Scopes: scopes,
	}
}

// OAuthToken returns the token part of the record.
func (r Record) OAuthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       r.Expiry,
	}
}

// withToken returns a copy of r updated from a refreshed token.
func (r Record) withToken(tok *oauth2.Token) Record {
	r.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		r.RefreshToken = tok.RefreshToken
	}
	r.Expiry = tok.Expiry
	return r
}

// FromConfig converts the gmail_token table of the config file.
func FromConfig(tc config.TokenConfig) (Record, error) {
	rec := Record{
		Token:        strings.TrimSpace(tc.Token),
		RefreshToken: strings.TrimSpace(tc.RefreshToken),
		TokenURI:     strings.TrimSpace(tc.TokenURI),
		ClientID:     strings.TrimSpace(tc.ClientID),
		ClientSecret: strings.TrimSpace(tc.ClientSecret),
		Scopes:       tc.Scopes,
	}
	if tc.Expiry != "" {
		expiry, err := time.Parse(time.RFC3339, tc.Expiry)
		if err != nil {
			return Record{}, fmt.Errorf("parsing gmail_token.expiry: %w", err)
		}
		rec.Expiry = expiry
	}
	return rec, nil
}

// ProvisioningHelp tells the operator how to obtain a token record.
const ProvisioningHelp = `Add a Gmail token to the configuration file or run "replybot auth".

To generate one with the OAuth Playground:
  1. Open https://developers.google.com/oauthplayground
  2. Select "Gmail API v1" and the scope https://www.googleapis.com/auth/gmail.modify
  3. Authorize access and exchange the code for tokens
  4. Copy the values into the config file:

[gmail_token]
token = "..."
refresh_token = "..."
token_uri = "https://oauth2.googleapis.com/token"
client_id = "..."
client_secret = "..."
scopes = ["https://www.googleapis.com/auth/gmail.modify"]`
