package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"avatarsvc/internal/config"
	"avatarsvc/internal/models"
)

// ErrUserNotFound is returned for unknown users and users without an email.
var ErrUserNotFound = errors.New("user not found")

// Client looks users up in the user directory service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg config.IdentityConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) UserDetail(ctx context.Context, userID string) (models.UserDetail, error) {
	endpoint := c.baseURL + "/api/users/" + url.PathEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.UserDetail{}, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.UserDetail{}, fmt.Errorf("identity lookup %s: %w", userID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.UserDetail{}, fmt.Errorf("%s: %w", userID, ErrUserNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.UserDetail{}, fmt.Errorf("identity lookup %s: unexpected status %d", userID, resp.StatusCode)
	}

	var detail models.UserDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return models.UserDetail{}, fmt.Errorf("decode identity response: %w", err)
	}
	if strings.TrimSpace(detail.Email) == "" {
		return models.UserDetail{}, fmt.Errorf("%s has no email: %w", userID, ErrUserNotFound)
	}
	return detail, nil
}
