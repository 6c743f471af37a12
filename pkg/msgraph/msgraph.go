// Package msgraph is a minimal Microsoft Graph client: app-only token
// acquisition with expiry caching, directory user lookup, and mail
// delivery for meeting-note notifications.
package msgraph

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

	"github.com/googleapis/gax-go/v2"
)

const (
	loginBase = "https://login.microsoftonline.com"
	graphBase = "https://graph.microsoft.com/v1.0"
)

// User is one directory entry.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
}

// Client holds app credentials and a cached application token.
type Client struct {
	tenantID     string
	clientID     string
	clientSecret string
	sender       string // mailbox used for SendMail

	login      string
	graph      string
	httpClient *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Client) { g.httpClient = c }
}

// WithEndpoints overrides the login and Graph base URLs. Intended for
// tests against a local server.
func WithEndpoints(login, graph string) Option {
	return func(g *Client) {
		g.login = strings.TrimRight(login, "/")
		g.graph = strings.TrimRight(graph, "/")
	}
}

// New creates a Graph client. The sender is the mailbox mail is sent from.
func New(tenantID, clientID, clientSecret, sender string, opts ...Option) *Client {
	c := &Client{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		sender:       sender,
		login:        loginBase,
		graph:        graphBase,
		httpClient:   http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns a valid application access token, fetching a new one via
// the client-credentials grant when the cached token is near expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.expiry) > time.Minute {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.login, c.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("msgraph: token request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("msgraph: token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("msgraph: token error: %s: %s", tok.Error, tok.Description)
	}
	c.token = tok.AccessToken
	c.expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// UserByName lists users whose display name starts with name.
func (c *Client) UserByName(ctx context.Context, name string) ([]User, error) {
	filter := fmt.Sprintf("startsWith(displayName,'%s')", strings.ReplaceAll(name, "'", "''"))
	var resp struct {
		Value []User `json:"value"`
	}
	path := "/users?" + url.Values{"$filter": {filter}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// UserByEmail fetches one user by principal name or mail.
func (c *Client) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+url.PathEscape(email), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendMail delivers an HTML message from the configured sender mailbox.
func (c *Client) SendMail(ctx context.Context, to []string, subject, htmlBody string) error {
	recipients := make([]map[string]any, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, map[string]any{
			"emailAddress": map[string]string{"address": addr},
		})
	}
	req := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body": map[string]string{
				"contentType": "HTML",
				"content":     htmlBody,
			},
			"toRecipients": recipients,
		},
		"saveToSentItems": false,
	}
	path := "/users/" + url.PathEscape(c.sender) + "/sendMail"
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

// doJSON performs one authenticated Graph request with backoff retries on
// 429/5xx and network errors.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	var body []byte
	if in != nil {
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	bo := gax.Backoff{}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, bo.Pause()); err != nil {
				return err
			}
		}
		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, c.graph+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("msgraph: %s %s: status %d", method, path, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("msgraph: %s %s: status %d", method, path, resp.StatusCode)
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, out)
	}
	return fmt.Errorf("msgraph: retries exhausted: %w", lastErr)
}
