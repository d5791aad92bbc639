// Package adk is an HTTP client for the agent server's session API.
package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NoiseDigital/agent-development-environment/models"
)

// Endpoint is one agent server. Name doubles as the app name it serves.
type Endpoint struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// ErrNoEndpoints is returned when no agent endpoint is configured.
var ErrNoEndpoints = errors.New("adk: no agent endpoints configured")

// Client talks to one or more agent servers. Calls never retry.
type Client struct {
	httpClient *http.Client
	logger     *log.Logger

	mu        sync.RWMutex
	endpoints []Endpoint
}

// NewClient creates a client. The first endpoint is the fallback for apps
// without an endpoint of their own.
func NewClient(endpoints ...Endpoint) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // /run waits for the whole agent turn
		},
		logger: log.New(os.Stdout, "[ADK] ", log.LstdFlags),
	}
	for _, ep := range endpoints {
		c.AddAgent(ep.Name, ep.URL, ep.Description)
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger replaces the default logger.
func (c *Client) WithLogger(l *log.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// AddAgent registers (or replaces) the endpoint for name.
func (c *Client) AddAgent(name, endpoint, description string) {
	ep := Endpoint{Name: name, URL: strings.TrimRight(endpoint, "/"), Description: description}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.endpoints {
		if c.endpoints[i].Name == name {
			c.endpoints[i] = ep
			return
		}
	}
	c.endpoints = append(c.endpoints, ep)
}

// Agents returns the registered endpoints in registration order.
func (c *Client) Agents() []Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// baseURL resolves the server for app, falling back to the first endpoint.
func (c *Client) baseURL(app string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	for _, ep := range c.endpoints {
		if ep.Name == app {
			return ep.URL, nil
		}
	}
	if app != "" {
		c.logger.Printf("Warning: no endpoint for app %q, using %s", app, c.endpoints[0].Name)
	}
	return c.endpoints[0].URL, nil
}

func sessionsURL(base, app, user string) string {
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions", base, url.PathEscape(app), url.PathEscape(user))
}

func sessionURL(base, app, user, sessionID string) string {
	return sessionsURL(base, app, user) + "/" + url.PathEscape(sessionID)
}

// ListApps queries every endpoint concurrently and returns the union of their
// apps in endpoint order without duplicates. Endpoints that fail are skipped;
// an error is returned only when all of them fail.
func (c *Client) ListApps(ctx context.Context) ([]string, error) {
	endpoints := c.Agents()
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	results := make([][]string, len(endpoints))
	failures := make([]error, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			var apps []string
			if err := c.doJSON(gctx, "list apps", http.MethodGet, ep.URL+"/list-apps", nil, &apps); err != nil {
				c.logger.Printf("Error listing apps from %s: %v", ep.Name, err)
				failures[i] = err
				return nil
			}
			results[i] = apps
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	apps := []string{}
	failed := 0
	for i := range endpoints {
		if failures[i] != nil {
			failed++
			continue
		}
		for _, app := range results[i] {
			if !seen[app] {
				seen[app] = true
				apps = append(apps, app)
			}
		}
	}
	if failed == len(endpoints) {
		return nil, fmt.Errorf("failed to list apps: %w", failures[0])
	}
	return apps, nil
}

// CreateSession creates a session, with a caller-chosen id when sessionID is set.
func (c *Client) CreateSession(ctx context.Context, app, user, sessionID string) (*models.Session, error) {
	base, err := c.baseURL(app)
	if err != nil {
		return nil, err
	}
	u := sessionsURL(base, app, user)
	if sessionID != "" {
		u = sessionURL(base, app, user, sessionID)
	}

	body := models.CreateSessionRequest{State: map[string]interface{}{}, Events: []models.Event{}}
	var session models.Session
	if err := c.doJSON(ctx, "create session", http.MethodPost, u, body, &session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// GetSession fetches a session with its events.
func (c *Client) GetSession(ctx context.Context, app, user, sessionID string) (*models.Session, error) {
	base, err := c.baseURL(app)
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := c.doJSON(ctx, "get session", http.MethodGet, sessionURL(base, app, user, sessionID), nil, &session); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// ListSessions lists the sessions of user in app.
func (c *Client) ListSessions(ctx context.Context, app, user string) ([]models.Session, error) {
	base, err := c.baseURL(app)
	if err != nil {
		return nil, err
	}
	var sessions []models.Session
	if err := c.doJSON(ctx, "list sessions", http.MethodGet, sessionsURL(base, app, user), nil, &sessions); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, app, user, sessionID string) error {
	base, err := c.baseURL(app)
	if err != nil {
		return err
	}
	if err := c.doJSON(ctx, "delete session", http.MethodDelete, sessionURL(base, app, user, sessionID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Run sends a message and waits for the events of the whole turn.
func (c *Client) Run(ctx context.Context, req models.AgentRunRequest) ([]models.Event, error) {
	base, err := c.baseURL(req.AppName)
	if err != nil {
		return nil, err
	}
	var events []models.Event
	if err := c.doJSON(ctx, "send message", http.MethodPost, base+"/run", req, &events); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return events, nil
}

// EventHandler receives streamed events in order. Returning an error stops the stream.
type EventHandler func(event models.Event) error

// RunSSE sends a message on /run_sse and hands every streamed event to fn.
func (c *Client) RunSSE(ctx context.Context, req models.AgentRunRequest, fn EventHandler) error {
	base, err := c.baseURL(req.AppName)
	if err != nil {
		return err
	}
	req.Streaming = true

	const op = "start streaming"
	u := base + "/run_sse"
	resp, err := c.do(ctx, op, http.MethodPost, u, req, "text/event-stream")
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	stream := newEventStream(resp.Body, func(data []byte, err error) {
		c.logger.Printf("Skipping malformed stream event: %v", err)
	})
	defer stream.Close()

	for {
		event, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		var serr *StreamError
		if errors.As(err, &serr) {
			return fmt.Errorf("failed to read stream: %w", serr)
		}
		if err != nil {
			return fmt.Errorf("failed to read stream: %w", &TransportError{Op: op, URL: u, Err: err})
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// doJSON performs one request and decodes a JSON response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, op, method, u string, in, out interface{}) error {
	resp, err := c.do(ctx, op, method, u, in, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// do sends the request and returns the response when the status is 2xx.
// The caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, u string, in interface{}, accept string) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return resp, nil
}
