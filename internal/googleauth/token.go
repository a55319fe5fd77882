// Package googleauth exchanges service-account JWT assertions for Google API
// access tokens.
package googleauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	assertionGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Scopes for the APIs the pipeline writes to.
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeCalendar     = "https://www.googleapis.com/auth/calendar"

	tokenExpiryBuffer = 5 * time.Minute
)

// TokenSource issues and caches access tokens for a service account.
type TokenSource struct {
	email      string
	key        *rsa.PrivateKey
	scopes     []string
	tokenURL   string
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource loads the PEM key file and prepares a token source for the
// given scopes.
func NewTokenSource(email, keyFile string, scopes ...string) (*TokenSource, error) {
	pemBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return &TokenSource{
		email:      email,
		key:        key,
		scopes:     scopes,
		tokenURL:   defaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Token returns a valid access token, reusing the cached one when possible.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Now().Add(tokenExpiryBuffer).Before(ts.expiresAt) {
		return ts.token, nil
	}

	assertion, err := ts.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", assertionGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("token exchange failed: %s: %s", body.Error, body.ErrorDesc)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange returned HTTP %d", resp.StatusCode)
	}

	ts.token = body.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return ts.token, nil
}

func (ts *TokenSource) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   ts.email,
		"scope": strings.Join(ts.scopes, " "),
		"aud":   ts.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}
