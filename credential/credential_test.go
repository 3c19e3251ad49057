package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/nalgeon/be"
	"github.com/rs/zerolog"

	"github.com/bassamadnan/replybot/config"
)

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "grant_type=refresh_token") {
			http.Error(w, "unexpected grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenSourceRejectsMissingRecord(t *testing.T) {
	_, err := TokenSource(context.Background(), Record{}, nil, zerolog.Nop())
	be.True(t, errors.Is(err, ErrNoToken))
}

func TestTokenSourceRejectsExpiredWithoutRefresh(t *testing.T) {
	rec := Record{Token: "stale", Expiry: time.Now().Add(-time.Hour)}
	_, err := TokenSource(context.Background(), rec, nil, zerolog.Nop())
	be.True(t, errors.Is(err, ErrTokenUnusable))
}

func TestTokenSourceUsesValidTokenWithoutRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	rec := Record{Token: "live", RefreshToken: "r", TokenURI: srv.URL, Expiry: time.Now().Add(time.Hour)}

	ts, err := TokenSource(context.Background(), rec, nil, zerolog.Nop())
	be.Err(t, err, nil)
	tok, err := ts.Token()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "live")
	be.Equal(t, calls.Load(), int32(0))
}

func TestTokenSourceRefreshesAndPersists(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	rec := Record{
		Token:        "stale",
		RefreshToken: "refresh",
		TokenURI:     srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Expiry:       time.Now().Add(-time.Hour),
	}

	ts, err := TokenSource(context.Background(), rec, store, zerolog.Nop())
	be.Err(t, err, nil)
	tok, err := ts.Token()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "fresh")
	be.Equal(t, calls.Load(), int32(1))

	saved, err := store.Load()
	be.Err(t, err, nil)
	be.Equal(t, saved.Token, "fresh")
	be.Equal(t, saved.RefreshToken, "refresh")
	be.Equal(t, saved.ClientID, "client")
}

func TestTokenSourceRefreshFailureHalts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	rec := Record{Token: "stale", RefreshToken: "revoked", TokenURI: srv.URL, Expiry: time.Now().Add(-time.Hour)}
	_, err := TokenSource(context.Background(), rec, nil, zerolog.Nop())
	be.Err(t, err, "refreshing gmail token")
}

func TestResolvePrefersStore(t *testing.T) {
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	be.Err(t, store.Save(Record{Token: "from-keyring"}), nil)

	rec, err := Resolve(store, Record{Token: "from-config"})
	be.Err(t, err, nil)
	be.Equal(t, rec.Token, "from-keyring")
}

func TestResolveFallsBackToConfig(t *testing.T) {
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))

	rec, err := Resolve(store, Record{Token: "from-config"})
	be.Err(t, err, nil)
	be.Equal(t, rec.Token, "from-config")

	_, err = Resolve(nil, Record{})
	be.True(t, errors.Is(err, ErrNoToken))
}

func TestFromConfig(t *testing.T) {
	rec, err := FromConfig(config.TokenConfig{
		Token:        " access ",
		RefreshToken: "refresh",
		Expiry:       "2026-01-02T15:04:05Z",
	})
	be.Err(t, err, nil)
	be.Equal(t, rec.Token, "access")
	be.Equal(t, rec.Expiry, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))

	_, err = FromConfig(config.TokenConfig{Token: "a", Expiry: "tomorrow"})
	be.Err(t, err, "expiry")
}

func TestOAuthConfigDefaults(t *testing.T) {
	cfg := Record{ClientID: "c"}.OAuthConfig()
	be.Equal(t, cfg.Endpoint.TokenURL, "https://oauth2.googleapis.com/token")
	be.Equal(t, cfg.Scopes, []string{"https://www.googleapis.com/auth/gmail.modify"})
}
