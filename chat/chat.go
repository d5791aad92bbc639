// Package chat keeps the client-side view of agent sessions: available apps,
// the session list, the current session and its projected messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/NoiseDigital/agent-development-environment/models"
)

// ErrNoApp is returned by operations that need a selected app.
var ErrNoApp = errors.New("chat: no app selected")

// SessionAPI is the remote session API. *adk.Client implements it.
type SessionAPI interface {
	ListApps(ctx context.Context) ([]string, error)
	CreateSession(ctx context.Context, app, user, sessionID string) (*models.Session, error)
	GetSession(ctx context.Context, app, user, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, app, user string) ([]models.Session, error)
	DeleteSession(ctx context.Context, app, user, sessionID string) error
	Run(ctx context.Context, req models.AgentRunRequest) ([]models.Event, error)
}

// Snapshot is a copy of the chat state.
type Snapshot struct {
	UserID         string           `json:"userId"`
	AvailableApps  []string         `json:"availableApps"`
	SelectedApp    string           `json:"selectedApp,omitempty"`
	Sessions       []models.Session `json:"sessions"`
	CurrentSession *models.Session  `json:"currentSession,omitempty"`
	Messages       []Message        `json:"messages"`
	IsLoading      bool             `json:"isLoading"`
	IsLoadingApps  bool             `json:"isLoadingApps"`
	Error          string           `json:"error,omitempty"`
}

// Chat is safe for concurrent use. Network calls run without the lock held.
type Chat struct {
	api    SessionAPI
	userID string
	logger *log.Logger

	mu          sync.Mutex
	apps        []string
	selectedApp string
	sessions    []models.Session
	current     *models.Session
	messages    []Message
	loading     bool
	loadingApps bool
	err         string
}

func New(api SessionAPI, userID string) *Chat {
	return &Chat{
		api:    api,
		userID: userID,
		logger: log.New(os.Stdout, fmt.Sprintf("[CHAT %s] ", userID), log.LstdFlags),
	}
}

// SetLogger replaces the default logger.
func (c *Chat) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Snapshot returns a copy of the current state.
func (c *Chat) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		UserID:        c.userID,
		AvailableApps: append([]string(nil), c.apps...),
		SelectedApp:   c.selectedApp,
		Sessions:      append([]models.Session(nil), c.sessions...),
		Messages:      append([]Message(nil), c.messages...),
		IsLoading:     c.loading,
		IsLoadingApps: c.loadingApps,
		Error:         c.err,
	}
	if c.current != nil {
		cur := *c.current
		s.CurrentSession = &cur
	}
	return s
}

// LoadApps fetches the app list and selects the first app when none is selected.
func (c *Chat) LoadApps(ctx context.Context) error {
	c.mu.Lock()
	c.loadingApps = true
	c.mu.Unlock()

	apps, err := c.api.ListApps(ctx)

	c.mu.Lock()
	c.loadingApps = false
	if err != nil {
		c.fail("Failed to load available apps", err)
		c.mu.Unlock()
		return err
	}
	c.apps = apps
	autoSelect := c.selectedApp == "" && len(apps) > 0
	if autoSelect {
		c.selectedApp = apps[0]
	}
	c.mu.Unlock()

	c.logger.Printf("Available apps: %v", apps)
	if autoSelect {
		return c.RefreshSessions(ctx)
	}
	return nil
}

// SelectApp switches apps, dropping the current session, and loads its sessions.
func (c *Chat) SelectApp(ctx context.Context, app string) error {
	c.mu.Lock()
	if app != c.selectedApp {
		c.selectedApp = app
		c.sessions = nil
		c.current = nil
		c.messages = nil
	}
	c.mu.Unlock()
	return c.RefreshSessions(ctx)
}

// RefreshSessions reloads the session list and selects the first session
// when none is current.
func (c *Chat) RefreshSessions(ctx context.Context) error {
	c.mu.Lock()
	app := c.selectedApp
	c.mu.Unlock()
	if app == "" {
		return nil
	}

	sessions, err := c.api.ListSessions(ctx, app, c.userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail("Failed to load sessions", err)
		return err
	}
	if app != c.selectedApp {
		return nil
	}
	c.sessions = sessions
	if c.current == nil && len(sessions) > 0 {
		first := sessions[0]
		c.setCurrent(&first)
	}
	return nil
}

// CreateSession creates "session-<unix ms>", puts it first and makes it current.
func (c *Chat) CreateSession(ctx context.Context) (*models.Session, error) {
	c.mu.Lock()
	app := c.selectedApp
	c.mu.Unlock()
	if app == "" {
		return nil, ErrNoApp
	}

	id := fmt.Sprintf("session-%d", nowFunc().UnixMilli())
	session, err := c.api.CreateSession(ctx, app, c.userID, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail("Failed to create session", err)
		return nil, err
	}
	c.sessions = append([]models.Session{*session}, c.sessions...)
	cur := *session
	c.current = &cur
	c.messages = nil
	c.err = ""
	return session, nil
}

// SelectSession fetches a session and makes it current.
func (c *Chat) SelectSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	app := c.selectedApp
	c.mu.Unlock()
	if app == "" {
		return ErrNoApp
	}

	session, err := c.api.GetSession(ctx, app, c.userID, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail("Failed to select session", err)
		return err
	}
	c.setCurrent(session)
	c.err = ""
	return nil
}

// DeleteSession deletes a session, clearing it if it was current.
func (c *Chat) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	app := c.selectedApp
	c.mu.Unlock()
	if app == "" {
		return ErrNoApp
	}

	err := c.api.DeleteSession(ctx, app, c.userID, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail("Failed to delete session", err)
		return err
	}
	kept := c.sessions[:0:0]
	for _, s := range c.sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	c.sessions = kept
	if c.current != nil && c.current.ID == sessionID {
		c.current = nil
		c.messages = nil
	}
	c.err = ""
	return nil
}

// SendMessage shows the user's text at once, runs the agent, then replaces
// the list with the projection of the re-fetched session. On failure the
// provisional message is removed. Blank content, or no app or session, is ignored.
func (c *Chat) SendMessage(ctx context.Context, content string) error {
	text := strings.TrimSpace(content)

	c.mu.Lock()
	if c.current == nil || c.selectedApp == "" || text == "" {
		c.mu.Unlock()
		return nil
	}
	app, sessionID := c.selectedApp, c.current.ID
	now := nowFunc().UnixMilli()
	echo := Message{
		ID:        fmt.Sprintf("user-%d", now),
		Content:   text,
		Author:    "user",
		Timestamp: now,
		Pending:   true,
	}
	c.messages = append(c.messages, echo)
	c.loading = true
	c.err = ""
	c.mu.Unlock()

	var session *models.Session
	_, err := c.api.Run(ctx, models.NewUserRunRequest(app, c.userID, sessionID, text))
	if err == nil {
		session, err = c.api.GetSession(ctx, app, c.userID, sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.messages = without(c.messages, echo.ID)
		c.fail("Failed to send message", err)
		return err
	}

	for i := range c.sessions {
		if c.sessions[i].ID == session.ID {
			c.sessions[i] = *session
		}
	}
	if c.current != nil && c.current.ID == sessionID {
		c.setCurrent(session)
	} else {
		c.messages = without(c.messages, echo.ID)
	}
	return nil
}

// setCurrent must be called with c.mu held.
func (c *Chat) setCurrent(session *models.Session) {
	c.current = session
	c.messages = EventsToMessages(session.Events)
}

// fail records a user-visible error. c.mu must be held.
func (c *Chat) fail(prefix string, err error) {
	c.err = prefix + ": " + reason(err)
	c.logger.Printf("%s", c.err)
}

// reason drops the "failed to <op>:" wrapper added by the API client.
func reason(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}

func without(msgs []Message, id string) []Message {
	var out []Message
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
