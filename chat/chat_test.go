package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NoiseDigital/agent-development-environment/models"
)

// fakeAPI is an in-memory session server.
type fakeAPI struct {
	mu       sync.Mutex
	apps     []string
	sessions map[string][]models.Session // app -> sessions
	runErr   error
	getErr   error
	listErr  error
	runs     []models.AgentRunRequest
	reply    string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		apps:     []string{"weather", "finance"},
		sessions: map[string][]models.Session{},
		reply:    "It is sunny.",
	}
}

func (f *fakeAPI) ListApps(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.apps...), nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, app, user, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := models.Session{ID: id, AppName: app, UserID: user, State: map[string]interface{}{}}
	f.sessions[app] = append(f.sessions[app], s)
	return &s, nil
}

func (f *fakeAPI) GetSession(ctx context.Context, app, user, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, s := range f.sessions[app] {
		if s.ID == id {
			out := s
			return &out, nil
		}
	}
	return nil, fmt.Errorf("failed to get session: %w", errors.New("not found"))
}

func (f *fakeAPI) ListSessions(ctx context.Context, app, user string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Session(nil), f.sessions[app]...), nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, app, user, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.Session
	for _, s := range f.sessions[app] {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	f.sessions[app] = kept
	return nil
}

func (f *fakeAPI) Run(ctx context.Context, req models.AgentRunRequest) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, req)
	if f.runErr != nil {
		return nil, f.runErr
	}
	list := f.sessions[req.AppName]
	for i := range list {
		if list[i].ID != req.SessionID {
			continue
		}
		n := float64(len(list[i].Events))
		list[i].Events = append(list[i].Events,
			textEvent("u"+req.SessionID+string(rune('a'+len(list[i].Events))), "user", req.NewMessage.Parts[0].Text, 1700000000+n),
			textEvent("a"+req.SessionID+string(rune('a'+len(list[i].Events))), "weather_agent", f.reply, 1700000000+n+1),
		)
		return list[i].Events, nil
	}
	return nil, errors.New("failed to send message: unknown session")
}

func (f *fakeAPI) seed(app string, sessions ...models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[app] = append(f.sessions[app], sessions...)
}

func TestLoadApps_SelectsFirstAppAndSession(t *testing.T) {
	api := newFakeAPI()
	api.seed("weather",
		models.Session{ID: "s-1", Events: []models.Event{textEvent("e1", "user", "hi", 1700000000)}},
		models.Session{ID: "s-2"},
	)
	c := New(api, "42")

	if err := c.LoadApps(context.Background()); err != nil {
		t.Fatalf("LoadApps: %v", err)
	}
	snap := c.Snapshot()
	if snap.SelectedApp != "weather" || len(snap.AvailableApps) != 2 {
		t.Fatalf("apps: %+v", snap)
	}
	if snap.CurrentSession == nil || snap.CurrentSession.ID != "s-1" {
		t.Fatalf("current = %+v", snap.CurrentSession)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Content != "hi" {
		t.Fatalf("messages = %+v", snap.Messages)
	}
	if snap.IsLoadingApps {
		t.Fatal("loading flag left set")
	}
}

func TestSendMessage_ReprojectsSession(t *testing.T) {
	api := newFakeAPI()
	api.seed("weather", models.Session{ID: "s-1"})
	c := New(api, "42")
	ctx := context.Background()
	_ = c.LoadApps(ctx)

	if err := c.SendMessage(ctx, "  Weather today?  "); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("messages = %+v", snap.Messages)
	}
	if snap.Messages[0].Content != "Weather today?" || snap.Messages[0].Pending {
		t.Fatalf("user message = %+v", snap.Messages[0])
	}
	if snap.Messages[1].Author != "weather_agent" || snap.Messages[1].Content != "It is sunny." {
		t.Fatalf("agent message = %+v", snap.Messages[1])
	}
	if snap.IsLoading || snap.Error != "" {
		t.Fatalf("state = %+v", snap)
	}
	if len(api.runs) != 1 || api.runs[0].UserID != "42" || api.runs[0].SessionID != "s-1" {
		t.Fatalf("runs = %+v", api.runs)
	}
}

func TestSendMessage_FailureRollsBack(t *testing.T) {
	api := newFakeAPI()
	api.seed("weather", models.Session{ID: "s-1", Events: []models.Event{
		textEvent("e1", "user", "earlier", 1700000000),
		textEvent("e2", "weather_agent", `{"text":"Chart","visualization":{"type":"bar","data":[]}}`, 1700000001),
	}})
	c := New(api, "42")
	ctx := context.Background()
	_ = c.LoadApps(ctx)
	before := c.Snapshot().Messages

	api.runErr = errors.New("failed to send message: server returned status 500")
	err := c.SendMessage(ctx, "will fail")
	if err == nil {
		t.Fatal("expected error")
	}

	snap := c.Snapshot()
	if !reflect.DeepEqual(before, snap.Messages) {
		t.Fatalf("messages changed:\nbefore %+v\nafter  %+v", before, snap.Messages)
	}
	if snap.Error == "" || !strings.HasPrefix(snap.Error, "Failed to send message: ") {
		t.Fatalf("error = %q", snap.Error)
	}
	if snap.IsLoading {
		t.Fatal("loading flag left set")
	}
}

func TestSendMessage_RefetchFailureRollsBack(t *testing.T) {
	api := newFakeAPI()
	api.seed("weather", models.Session{ID: "s-1", Events: []models.Event{textEvent("e1", "user", "x", 1)}})
	c := New(api, "42")
	ctx := context.Background()
	_ = c.LoadApps(ctx)
	before := c.Snapshot().Messages

	api.getErr = fmt.Errorf("failed to get session: %w", errors.New("timeout"))
	if err := c.SendMessage(ctx, "hello"); err == nil {
		t.Fatal("expected error")
	}
	if !reflect.DeepEqual(before, c.Snapshot().Messages) {
		t.Fatal("optimistic message not removed")
	}
	if got := c.Snapshot().Error; got != "Failed to send message: timeout" {
		t.Fatalf("error = %q", got)
	}
}

func TestSendMessage_Ignored(t *testing.T) {
	api := newFakeAPI()
	c := New(api, "42")
	ctx := context.Background()

	if err := c.SendMessage(ctx, "no session"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	api.seed("weather", models.Session{ID: "s-1"})
	_ = c.LoadApps(ctx)
	if err := c.SendMessage(ctx, "   "); err != nil {
		t.Fatalf("SendMessage blank: %v", err)
	}
	if len(api.runs) != 0 {
		t.Fatalf("unexpected runs %+v", api.runs)
	}
}

func TestCreateSelectDeleteSession(t *testing.T) {
	withFixedNow(t, time.UnixMilli(1700000000999))
	api := newFakeAPI()
	api.seed("weather", models.Session{ID: "old", Events: []models.Event{textEvent("e1", "user", "x", 1)}})
	c := New(api, "42")
	ctx := context.Background()
	_ = c.LoadApps(ctx)

	created, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.ID != "session-1700000000999" {
		t.Fatalf("id = %q", created.ID)
	}
	snap := c.Snapshot()
	if snap.Sessions[0].ID != created.ID || snap.CurrentSession.ID != created.ID || len(snap.Messages) != 0 {
		t.Fatalf("after create: %+v", snap)
	}

	if err := c.SelectSession(ctx, "old"); err != nil {
		t.Fatalf("SelectSession: %v", err)
	}
	if snap = c.Snapshot(); snap.CurrentSession.ID != "old" || len(snap.Messages) != 1 {
		t.Fatalf("after select: %+v", snap)
	}

	if err := c.DeleteSession(ctx, created.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if snap = c.Snapshot(); snap.CurrentSession.ID != "old" || len(snap.Sessions) != 1 {
		t.Fatalf("deleting another session touched current: %+v", snap)
	}

	if err := c.DeleteSession(ctx, "old"); err != nil {
		t.Fatalf("DeleteSession current: %v", err)
	}
	snap = c.Snapshot()
	if snap.CurrentSession != nil || len(snap.Messages) != 0 || len(snap.Sessions) != 0 {
		t.Fatalf("after deleting current: %+v", snap)
	}
}

func TestSelectSession_ErrorIsReported(t *testing.T) {
	api := newFakeAPI()
	c := New(api, "42")
	ctx := context.Background()
	_ = c.LoadApps(ctx)

	if err := c.SelectSession(ctx, "missing"); err == nil {
		t.Fatal("expected error")
	}
	if got := c.Snapshot().Error; got != "Failed to select session: not found" {
		t.Fatalf("error = %q", got)
	}
}

func TestSelectApp_ClearsCurrent(t *testing.T) {
	api := newFakeAPI()
	api.seed("weather", models.Session{ID: "w-1"})
	api.seed("finance", models.Session{ID: "f-1"}, models.Session{ID: "f-2"})
	c := New(api, "42")
	ctx := context.Background()
	_ = c.LoadApps(ctx)

	if err := c.SelectApp(ctx, "finance"); err != nil {
		t.Fatalf("SelectApp: %v", err)
	}
	snap := c.Snapshot()
	if snap.SelectedApp != "finance" || snap.CurrentSession.ID != "f-1" || len(snap.Sessions) != 2 {
		t.Fatalf("after switch: %+v", snap)
	}
}

func TestOperationsWithoutApp(t *testing.T) {
	c := New(newFakeAPI(), "42")
	ctx := context.Background()
	if _, err := c.CreateSession(ctx); !errors.Is(err, ErrNoApp) {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := c.SelectSession(ctx, "x"); !errors.Is(err, ErrNoApp) {
		t.Fatalf("SelectSession: %v", err)
	}
	if err := c.DeleteSession(ctx, "x"); !errors.Is(err, ErrNoApp) {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := c.RefreshSessions(ctx); err != nil {
		t.Fatalf("RefreshSessions: %v", err)
	}
}

func TestRefreshSessions_Error(t *testing.T) {
	api := newFakeAPI()
	api.listErr = fmt.Errorf("failed to list sessions: %w", errors.New("boom"))
	c := New(api, "42")
	if err := c.LoadApps(context.Background()); err == nil {
		t.Fatal("expected error from session load")
	}
	if got := c.Snapshot().Error; got != "Failed to load sessions: boom" {
		t.Fatalf("error = %q", got)
	}
}
