package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Resolve picks the record to use. A record in the store wins over the one
// from the config file; a nil store means the config record is used as is.
func Resolve(store Store, fallback Record) (Record, error) {
	if store != nil {
		rec, err := store.Load()
		switch {
		case err == nil && !rec.IsZero():
			return rec, nil
		case err != nil && !errors.Is(err, ErrNoToken):
			return Record{}, err
		}
	}
	if fallback.IsZero() {
		return Record{}, ErrNoToken
	}
	return fallback, nil
}

// TokenSource validates rec, refreshes it if it is no longer valid and returns
// a source that keeps refreshing it. Every refreshed token is written back to
// store when store is not nil. Any error here means the bot cannot start.
func TokenSource(ctx context.Context, rec Record, store Store, log zerolog.Logger) (oauth2.TokenSource, error) {
	if rec.IsZero() {
		return nil, ErrNoToken
	}
	tok := rec.OAuthToken()
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, ErrTokenUnusable
	}

	base := rec.OAuthConfig().TokenSource(ctx, tok)
	fresh, err := base.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing gmail token: %w", err)
	}

	ps := &persistingSource{base: base, rec: rec, store: store, log: log}
	ps.observe(fresh)
	return ps, nil
}

// persistingSource saves the record whenever the access token changes.
type persistingSource struct {
	base  oauth2.TokenSource
	store Store
	log   zerolog.Logger

	mu  sync.Mutex
	rec Record
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.observe(tok)
	return tok, nil
}

func (p *persistingSource) observe(tok *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.rec.Token && tok.Expiry.Equal(p.rec.Expiry) {
		return
	}
	p.rec = p.rec.withToken(tok)
	p.log.Debug().Time("expiry", tok.Expiry).Msg("gmail token refreshed")
	if p.store == nil {
		return
	}
	if err := p.store.Save(p.rec); err != nil {
		p.log.Warn().Err(err).Msg("could not persist refreshed gmail token")
	}
}
