package kiseki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// tokenManager handles bearer token acquisition and refresh against the
// collector's auth endpoint. It is safe for concurrent use; concurrent
// refreshes are collapsed into a single request.
type tokenManager struct {
	baseURL string
	agentID string
	apiKey  string
	client  *http.Client
	margin  time.Duration

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, agentID, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL: baseURL,
		agentID: agentID,
		apiKey:  apiKey,
		client:  client,
		margin:  30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		token := tm.token
		tm.mu.Unlock()
		return token, nil
	}
	tm.mu.Unlock()

	token, err, _ := tm.group.Do("refresh", func() (any, error) {
		return tm.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

type authRequest struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

type authResponseEnvelope struct {
	Data struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"data"`
}

func (tm *tokenManager) refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{AgentID: tm.agentID, APIKey: tm.apiKey})
	if err != nil {
		return "", fmt.Errorf("kiseki: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kiseki: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("kiseki: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kiseki: auth failed with status %d", resp.StatusCode)
	}

	var envelope authResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("kiseki: decode auth response: %w", err)
	}

	expiresAt := envelope.Data.ExpiresAt
	if expiresAt.IsZero() {
		// Older collectors omit expires_at; fall back to the token's own exp
		// claim. The signature is verified server-side, not here.
		expiresAt = tokenExpiry(envelope.Data.Token)
	}

	tm.mu.Lock()
	tm.token = envelope.Data.Token
	tm.expiresAt = expiresAt
	tm.mu.Unlock()

	return envelope.Data.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature. Returns
// the zero time when the token has no usable expiry, which forces a refresh
// on the next call.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
