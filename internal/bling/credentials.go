package bling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Credentials: credenciais OAuth do aplicativo Bling. Injetadas na
// construção do cliente — nunca estado global.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// tokenSource: guarda o access token corrente e renova quando expira.
// Toda chamada à API passa por withValidToken.
type tokenSource struct {
	mu      sync.Mutex
	creds   Credentials
	baseURL string
	http    *http.Client

	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// withValidToken: garante token válido (renovando se preciso) e executa fn.
func (ts *tokenSource) withValidToken(ctx context.Context, fn func(token string) error) error {
	ts.mu.Lock()
	// margem de 60s para não usar token prestes a expirar no meio da chamada
	if ts.token == "" || time.Now().After(ts.expiresAt.Add(-60*time.Second)) {
		if err := ts.refresh(ctx); err != nil {
			ts.mu.Unlock()
			return err
		}
	}
	token := ts.token
	ts.mu.Unlock()

	return fn(token)
}

func (ts *tokenSource) refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	req.SetBasicAuth(ts.creds.ClientID, ts.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrTokenRefresh, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%w: resposta ilegível: %v", ErrTokenRefresh, err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: resposta sem access_token", ErrTokenRefresh)
	}

	ts.token = tr.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return nil
}
