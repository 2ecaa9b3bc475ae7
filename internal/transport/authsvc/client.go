// Package authsvc verifies and refreshes session tokens against the external auth service.
package authsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
)

// Config holds auth service settings.
type Config struct {
	IssuerURL string
	ClientID  string
	Timeout   time.Duration
}

// Subject identifies the authenticated user.
type Subject struct {
	ID    string
	Email string
}

// Tokens is a refreshed token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Client talks to the auth service over HTTP.
type Client struct {
	issuer string
	http   *http.Client
	oauth  *oauth2.Config
}

// New creates an auth service client.
func New(cfg Config) *Client {
	issuer := strings.TrimRight(cfg.IssuerURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		issuer: issuer,
		http:   &http.Client{Timeout: timeout},
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  issuer + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Verify resolves the subject of an access token via GET {issuer}/userinfo.
// A rejected token yields domain.ErrUnauthorized.
func (c *Client) Verify(ctx context.Context, accessToken string) (Subject, error) {
	if accessToken == "" {
		return Subject{}, domain.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.issuer+"/userinfo", http.NoBody)
	if err != nil {
		return Subject{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Subject{}, fmt.Errorf("userinfo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Subject{}, fmt.Errorf("userinfo status %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Subject{}, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var body struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Subject{}, fmt.Errorf("decode userinfo: %w", err)
	}

	id := body.Sub
	if id == "" {
		id = body.ID
	}
	if id == "" {
		return Subject{}, fmt.Errorf("userinfo without subject: %w", domain.ErrUnauthorized)
	}
	return Subject{ID: id, Email: body.Email}, nil
}

// Refresh exchanges a refresh token for a new pair (grant_type=refresh_token).
// A refresh token the service rejects yields domain.ErrUnauthorized.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, domain.ErrUnauthorized
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return Tokens{}, fmt.Errorf("refresh rejected: %w", domain.ErrUnauthorized)
		}
		return Tokens{}, fmt.Errorf("refresh token: %w", err)
	}

	return Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}
