package strava

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenSource builds the credential source for outbound calls:
// a static bearer token when one is provisioned, otherwise a cached
// refresh-token flow against the token endpoint.
func tokenSource(cfg Config) (oauth2.TokenSource, error) {
	if tok := strings.TrimSpace(cfg.AccessToken); tok != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}), nil
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no access token and incomplete refresh credentials", ErrAuth)
	}

	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	// Expiry in the past forces a refresh on first use; ReuseTokenSource
	// then caches the minted token until it expires.
	seed := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	return oauth2.ReuseTokenSource(nil, oc.TokenSource(context.Background(), seed)), nil
}

// EnsureAuth verifies a usable credential can be obtained right now.
func (c *Client) EnsureAuth(ctx context.Context) error {
	_ = ctx
	if _, err := c.ts.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return nil
}
