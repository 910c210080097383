// Package identity verifies email/password pairs against a hosted identity
// service. The application never sees or stores password hashes.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials means the provider rejected the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnavailable means the provider could not be reached or answered
	// with something other than a verdict.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// Provider verifies credentials and returns the provider's stable user id.
type Provider interface {
	Verify(ctx context.Context, email, password string) (string, error)
}

// PasswordClient calls the identity toolkit accounts:signInWithPassword REST
// endpoint, authenticated with a web API key.
type PasswordClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewPasswordClient creates a client. endpoint is the API base, for example
// https://identitytoolkit.googleapis.com/v1.
func NewPasswordClient(endpoint, apiKey string, timeout time.Duration) *PasswordClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PasswordClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *PasswordClient) Verify(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return "", fmt.Errorf("encode sign-in request: %w", err)
	}

	u := p.endpoint + "/accounts:signInWithPassword?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var out signInResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: status %d, undecodable body", ErrUnavailable, resp.StatusCode)
	}

	if out.Error != nil {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, out.Error.Message)
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if out.LocalID == "" {
		return "", fmt.Errorf("%w: response missing localId", ErrUnavailable)
	}
	return out.LocalID, nil
}
