// Package wiki is a REST client for a Confluence-style document store.
// The pipeline needs only a narrow surface: find pages by label, read and
// create page bodies, move labels, and append comments. Transient HTTP
// failures (429, 5xx, network) are retried with exponential backoff.
package wiki

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

	"github.com/googleapis/gax-go/v2"
)

// ErrNotFound is returned when a page lookup matches nothing.
var ErrNotFound = errors.New("wiki: page not found")

// Page is a search result: enough to fetch or link the page.
type Page struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Content is a full page fetch.
type Content struct {
	ID    string
	Title string
	// Body is the page body in storage (XHTML) representation.
	Body string
	// URL is the absolute browser link to the page.
	URL string
}

// Client talks to one wiki site with basic auth.
type Client struct {
	base  string // e.g. https://example.atlassian.net
	space string
	email string
	token string

	httpClient *http.Client
	retries    int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Client) { w.httpClient = c }
}

// WithRetries sets the maximum attempts per request. Default 3.
func WithRetries(n int) Option {
	return func(w *Client) { w.retries = n }
}

// New creates a wiki client for the given site and space.
func New(baseURL, space, email, token string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		space:      space,
		email:      email,
		token:      token,
		httpClient: http.DefaultClient,
		retries:    3,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchByLabel lists pages in the client's space carrying the label.
func (c *Client) SearchByLabel(ctx context.Context, label string, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = 50
	}
	cql := fmt.Sprintf("type=page AND label=%q AND space=%q", label, c.space)
	q := url.Values{"cql": {cql}, "limit": {fmt.Sprint(limit)}}
	var resp struct {
		Results []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Links struct {
				WebUI string `json:"webui"`
			} `json:"_links"`
		} `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/wiki/rest/api/content/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	pages := make([]Page, 0, len(resp.Results))
	for _, r := range resp.Results {
		pages = append(pages, Page{ID: r.ID, Title: r.Title, URL: c.base + "/wiki" + r.Links.WebUI})
	}
	return pages, nil
}

// PageByTitle finds the page with the exact title in the client's space.
func (c *Client) PageByTitle(ctx context.Context, title string) (*Content, error) {
	q := url.Values{
		"title":    {title},
		"type":     {"page"},
		"spaceKey": {c.space},
		"expand":   {"body.storage,version"},
	}
	var resp struct {
		Results []contentJSON `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/wiki/rest/api/content?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: title %q", ErrNotFound, title)
	}
	return c.content(&resp.Results[0]), nil
}

// GetPage fetches one page body by id.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Content, error) {
	var resp contentJSON
	path := "/wiki/rest/api/content/" + url.PathEscape(pageID) + "?expand=body.storage,version,space"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return c.content(&resp), nil
}

// CreatePage creates a child page under parentID and returns the new id.
func (c *Client) CreatePage(ctx context.Context, parentID, title, body string) (string, error) {
	req := map[string]any{
		"title":     title,
		"type":      "page",
		"space":     map[string]string{"key": c.space},
		"ancestors": []map[string]string{{"id": parentID}},
		"body": map[string]any{
			"storage": map[string]string{
				"value":          body,
				"representation": "storage",
			},
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/wiki/rest/api/content", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// AddLabel attaches a label to a page.
func (c *Client) AddLabel(ctx context.Context, pageID, label string) error {
	path := "/wiki/rest/api/content/" + url.PathEscape(pageID) + "/label"
	return c.doJSON(ctx, http.MethodPost, path, map[string]string{"name": label}, nil)
}

// RemoveLabel detaches a label from a page.
func (c *Client) RemoveLabel(ctx context.Context, pageID, label string) error {
	path := "/wiki/rest/api/content/" + url.PathEscape(pageID) + "/label/" + url.PathEscape(label)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// AddComment appends a footer comment (storage HTML) to a page.
func (c *Client) AddComment(ctx context.Context, pageID, html string) error {
	req := map[string]any{
		"pageId": pageID,
		"body": map[string]string{
			"representation": "storage",
			"value":          html,
		},
	}
	return c.doJSON(ctx, http.MethodPost, "/wiki/api/v2/footer-comments", req, nil)
}

// Comments returns all footer comments on a page as plain text, following
// pagination until exhausted.
func (c *Client) Comments(ctx context.Context, pageID string) ([]string, error) {
	var out []string
	err := c.eachComment(ctx, pageID, func(body string) bool {
		out = append(out, ToText(body))
		return true
	})
	return out, err
}

// HasComment reports whether any footer comment on the page contains the
// keyword. Used to skip pages already reviewed.
func (c *Client) HasComment(ctx context.Context, pageID, keyword string) (bool, error) {
	found := false
	err := c.eachComment(ctx, pageID, func(body string) bool {
		if strings.Contains(body, keyword) {
			found = true
			return false
		}
		return true
	})
	return found, err
}

func (c *Client) eachComment(ctx context.Context, pageID string, visit func(body string) bool) error {
	path := "/wiki/api/v2/pages/" + url.PathEscape(pageID) + "/footer-comments?body-format=storage"
	for path != "" {
		var resp struct {
			Results []struct {
				Body struct {
					Storage struct {
						Value string `json:"value"`
					} `json:"storage"`
				} `json:"body"`
			} `json:"results"`
			Links struct {
				Next string `json:"next"`
			} `json:"_links"`
		}
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		for _, r := range resp.Results {
			if !visit(r.Body.Storage.Value) {
				return nil
			}
		}
		path = resp.Links.Next
	}
	return nil
}

type contentJSON struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		Base  string `json:"base"`
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func (c *Client) content(j *contentJSON) *Content {
	base := j.Links.Base
	if base == "" {
		base = c.base + "/wiki"
	}
	return &Content{
		ID:    j.ID,
		Title: j.Title,
		Body:  j.Body.Storage.Value,
		URL:   base + j.Links.WebUI,
	}
}

// doJSON performs one JSON request with basic auth and backoff retries on
// transient failures. A nil out discards the response body.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return err
		}
	}
	bo := gax.Backoff{}
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, bo.Pause()); err != nil {
				return err
			}
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.email, c.token)
		req.Header.Set("Accept", "application/json")
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
			lastErr = fmt.Errorf("wiki: %s %s: status %d", method, path, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("wiki: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 200))
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, out)
	}
	return fmt.Errorf("wiki: retries exhausted: %w", lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
