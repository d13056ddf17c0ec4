package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/greyhatharola/Oracular/internal/cache"
	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// authenticator applies a SourceConfig's AuthConfig to outbound requests,
// refreshing an OAuth2 client-credentials token as needed (spec §4.1 "Auth").
// The refreshed token itself is held in a cache.TokenCache, keyed by a hash
// of the client ID and token URL. Each authenticator builds its own
// TokenCache, so tokens are not shared between adapters.
type authenticator struct {
	cfg domain.AuthConfig

	mu         sync.Mutex
	tokens     *cache.TokenCache
	tokenKey   string
	httpClient *http.Client
}

func newAuthenticator(cfg domain.AuthConfig) *authenticator {
	sum := sha256.Sum256([]byte(cfg.ClientID + "|" + cfg.TokenURL))
	return &authenticator{
		cfg:        cfg,
		tokens:     cache.NewTokenCache(cache.DefaultConfig()),
		tokenKey:   hex.EncodeToString(sum[:]),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Apply mutates req to carry whatever credentials this auth kind requires.
func (a *authenticator) Apply(ctx context.Context, req *http.Request) error {
	switch a.cfg.Kind {
	case domain.AuthNone, "":
		return nil
	case domain.AuthAPIKey:
		req.Header.Set(a.cfg.HeaderName, a.cfg.APIKey)
		return nil
	case domain.AuthOAuth2:
		token, err := a.oauthToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	case domain.AuthClientCert:
		// Connection-level: the adapter's http.Client must be built with the
		// cert/key/CA from a.cfg; nothing to add to this request.
		return nil
	default:
		return errs.Auth(fmt.Sprintf("unknown auth kind %q", a.cfg.Kind), nil)
	}
}

// oauthToken returns a cached client-credentials token, refreshing it when
// within 300s of expiry (spec §4.1 "cache token until expires_at − 300 s").
// The mutex only serializes refreshes against this authenticator; the cache
// entry itself expires on its own, so a concurrent Fetch on a still-valid
// token never blocks on it.
func (a *authenticator) oauthToken(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.GetToken(a.tokenKey); ok {
		return tok.(string), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if tok, ok := a.tokens.GetToken(a.tokenKey); ok {
		return tok.(string), nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	if a.cfg.Scope != "" {
		form.Set("scope", a.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errs.Auth("build oauth2 token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", errs.Auth("oauth2 token refresh failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errs.Auth(fmt.Sprintf("oauth2 token endpoint returned %d", resp.StatusCode), nil)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errs.Auth("decode oauth2 token response", err)
	}

	// A token that expires within the 300s buffer is used for this request
	// only and not cached, so the next call refreshes it.
	if ttl := time.Duration(body.ExpiresIn)*time.Second - 300*time.Second; ttl > 0 {
		a.tokens.SetToken(a.tokenKey, body.AccessToken, ttl)
	}
	return body.AccessToken, nil
}
