package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// tokenSession owns the KIS access token: in-memory expiry tracking
// plus a store-backed cache so repeated process starts reuse a live
// token. Cache failures are treated as misses, never surfaced.
type tokenSession struct {
	provider *KISProvider
	store    storage.BotStateStore

	accessToken string
	expireAt    time.Time
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpireAt    time.Time `json:"expire_at"`
}

const tokenSafetyMargin = 5 * time.Minute

// token returns a valid access token, issuing a new one when both the
// in-memory and the cached token are stale.
func (s *tokenSession) token(ctx context.Context) (string, error) {
	now := time.Now()
	if s.accessToken != "" && now.Before(s.expireAt) {
		return s.accessToken, nil
	}
	if tok := s.loadCached(ctx, tokenSafetyMargin); tok != "" {
		return tok, nil
	}
	return s.issue(ctx)
}

func (s *tokenSession) issue(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     s.provider.cfg.AppKey,
		"appsecret":  s.provider.cfg.AppSecret,
	}
	raw, err := s.provider.request(ctx, http.MethodPost, "/oauth2/tokenP", nil, nil, body)
	if err != nil {
		// KIS issues tokens at most once per minute (EGW00133).
		// Fall back to a nearly-stale cached token, else wait out
		// the window once.
		if strings.Contains(err.Error(), "EGW00133") {
			if tok := s.loadCached(ctx, time.Minute); tok != "" {
				return tok, nil
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(61 * time.Second):
			}
			raw, err = s.provider.request(ctx, http.MethodPost, "/oauth2/tokenP", nil, nil, body)
		}
		if err != nil {
			return "", fmt.Errorf("kis: issue token: %w", err)
		}
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("kis: decode token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("kis: token response without access_token")
	}
	expires := payload.ExpiresIn
	if expires <= 0 {
		expires = 23 * 3600
	}
	ttl := time.Duration(expires)*time.Second - tokenSafetyMargin
	if ttl < tokenSafetyMargin {
		ttl = tokenSafetyMargin
	}
	s.accessToken = payload.AccessToken
	s.expireAt = time.Now().Add(ttl)
	s.saveCached(ctx)
	return s.accessToken, nil
}

// loadCached reads the persisted token; anything malformed or expiring
// within minTTL is a miss.
func (s *tokenSession) loadCached(ctx context.Context, minTTL time.Duration) string {
	if s.store == nil {
		return ""
	}
	raw, err := s.store.Get(ctx, tokenStateKey)
	if err != nil {
		return ""
	}
	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return ""
	}
	if cached.AccessToken == "" || !time.Now().Add(minTTL).Before(cached.ExpireAt) {
		return ""
	}
	s.accessToken = cached.AccessToken
	s.expireAt = cached.ExpireAt
	return cached.AccessToken
}

func (s *tokenSession) saveCached(ctx context.Context) {
	if s.store == nil {
		return
	}
	buf, err := json.Marshal(cachedToken{AccessToken: s.accessToken, ExpireAt: s.expireAt})
	if err != nil {
		return
	}
	_ = s.store.Set(ctx, tokenStateKey, string(buf), timeutil.NowKST())
}
