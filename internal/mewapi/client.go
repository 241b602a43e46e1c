package mewapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxResponseBytes = 2 * 1024 * 1024

// Client calls the platform HTTP API with the bot's user token.
type Client struct {
	apiBase    string
	httpClient *http.Client

	mu        sync.RWMutex
	userToken string
	me        User
}

func NewClient(apiBase string, httpClient *http.Client) (*Client, error) {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("apiBase is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiBase:    apiBase,
		httpClient: httpClient,
	}, nil
}

func (c *Client) APIBase() string { return c.apiBase }

// Me returns the bot's own user as of the last successful Login.
func (c *Client) Me() User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.me
}

// Login exchanges the bot access token for a user JWT via POST /auth/bot
// and remembers it for subsequent calls.
func (c *Client) Login(ctx context.Context, accessToken string) (User, error) {
	reqBody, err := json.Marshal(map[string]any{"accessToken": accessToken})
	if err != nil {
		return User{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/auth/bot", bytes.NewReader(reqBody))
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return User{}, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(parsed.User.ID) == "" || strings.TrimSpace(parsed.Token) == "" {
		return User{}, fmt.Errorf("invalid /auth/bot response: missing user/token")
	}

	c.mu.Lock()
	c.me = parsed.User
	c.userToken = parsed.Token
	c.mu.Unlock()
	return parsed.User, nil
}

// Token returns the user JWT obtained by the last successful Login; the
// gateway handshake authenticates with the same token.
func (c *Client) Token() string { return c.token() }

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userToken
}

// do issues a JSON request and decodes the 2xx response into out (when
// out is non-nil). Non-2xx responses come back as *HTTPStatusError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reqBody)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
