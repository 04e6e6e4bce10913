package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/joblens/harvester/internal/harvest"
)

// tokenRefreshMargin refreshes tokens this long before their expiry so an
// in-flight request never carries a token that dies mid-request.
const tokenRefreshMargin = 60 * time.Second

// TokenCache caches OAuth2 client-credentials token sources keyed by
// (token endpoint, client id). Token sources are shared across requests to
// the same authenticated API source and refresh themselves early.
type TokenCache struct {
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewTokenCache builds an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{sources: make(map[string]oauth2.TokenSource)}
}

// Token returns a valid bearer token for creds, minting or refreshing as
// needed.
func (c *TokenCache) Token(ctx context.Context, creds harvest.OAuthCredentials) (string, error) {
	key := creds.TokenURL + "|" + creds.ClientID

	c.mu.Lock()
	src, ok := c.sources[key]
	if !ok {
		cfg := clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
		}
		src = oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(context.Background()), tokenRefreshMargin)
		c.sources[key] = src
	}
	c.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("oauth token for %s: %w", creds.TokenURL, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Clear drops all cached token sources. Test hook.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = make(map[string]oauth2.TokenSource)
}
