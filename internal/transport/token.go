package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// OAuth refreshes a bearer token against an OAuth token endpoint. The refresh
// call itself retries with exponential backoff because it is pure plumbing;
// message sends never do.
type OAuth struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Client       *http.Client
	Log          *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewOAuth(endpoint, clientID, clientSecret, refreshToken string, log *zap.Logger) *OAuth {
	return &OAuth{
		Endpoint:     endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
		Client:       &http.Client{Timeout: 15 * time.Second},
		Log:          log,
	}
}

func (o *OAuth) Token() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == "" || time.Now().After(o.expires) {
		return ""
	}
	return o.token
}

func (o *OAuth) HasValidCredential() bool {
	return o.Token() != ""
}

func (o *OAuth) Invalidate() {
	o.mu.Lock()
	o.token = ""
	o.expires = time.Time{}
	o.mu.Unlock()
}

// Reauthorize obtains a fresh access token. Idempotent: with a still-valid
// credential it returns immediately. A context cancellation maps to
// ErrReauthorizeCancelled so callers can tell a declined flow from a failure.
func (o *OAuth) Reauthorize(ctx context.Context) error {
	if o.HasValidCredential() {
		return nil
	}

	operation := func() error {
		return o.refresh(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ErrReauthorizeCancelled
		}
		return fmt.Errorf("token refresh failed: %w", err)
	}
	return nil
}

func (o *OAuth) refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("refresh_token", o.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		// 4xx from the token endpoint will not get better with retries
		return backoff.Permanent(fmt.Errorf("token endpoint rejected refresh: %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return backoff.Permanent(fmt.Errorf("decode token response: %w", err))
	}
	if payload.AccessToken == "" {
		return backoff.Permanent(errors.New("token response missing access_token"))
	}

	expires := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	o.mu.Lock()
	o.token = payload.AccessToken
	o.expires = expires
	o.mu.Unlock()

	o.Log.Info("transport credential refreshed", zap.Time("expires", expires))
	return nil
}
