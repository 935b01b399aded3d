package opera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pmsbridge/internal/domain"
)

// expirySlack refreshes slightly early so requests never carry a token
// that dies in flight.
const expirySlack = 30 * time.Second

// tokenManager caches one OAuth2 client-credentials token per adapter
// instance. Refresh is single-flight: concurrent callers await the same
// in-flight handshake instead of hammering the token endpoint.
type tokenManager struct {
	endpoint string
	clientID string
	secret   string
	hc       *http.Client

	sf singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenManager(base, clientID, secret string, hc *http.Client) *tokenManager {
	return &tokenManager{
		endpoint: base + "/oauth/v1/tokens",
		clientID: clientID,
		secret:   secret,
		hc:       hc,
	}
}

// Token returns a valid bearer token, refreshing if needed.
func (m *tokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != "" && time.Now().Before(m.expiry.Add(-expirySlack)) {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	v, err, _ := m.sf.Do("token", func() (any, error) {
		return m.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token after a 401 so the next call
// re-authenticates.
func (m *tokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

func (m *tokenManager) fetch(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.PMSErr("build token request", false, err)
	}
	req.SetBasicAuth(m.clientID, m.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.PMSErr("token endpoint unreachable", true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return "", domain.AuthErr("client credentials rejected", nil)
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return "", domain.PMSErr(fmt.Sprintf("token endpoint returned %d", resp.StatusCode), true, nil)
	default:
		io.Copy(io.Discard, resp.Body)
		return "", domain.PMSErr(fmt.Sprintf("token endpoint returned %d", resp.StatusCode), false, nil)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", domain.PMSErr("decode token response", false, err)
	}
	if body.AccessToken == "" {
		return "", domain.AuthErr("token endpoint returned empty token", nil)
	}

	m.mu.Lock()
	m.token = body.AccessToken
	m.expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	m.mu.Unlock()
	return body.AccessToken, nil
}
