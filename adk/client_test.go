package adk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NoiseDigital/agent-development-environment/models"
)

func newAgentServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestListApps_UnionSkipsFailures(t *testing.T) {
	a := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["weather","finance"]`))
	})
	broken := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	b := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list-apps" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`["finance","travel"]`))
	})

	c := NewClient(
		Endpoint{Name: "weather", URL: a.URL},
		Endpoint{Name: "broken", URL: broken.URL},
		Endpoint{Name: "travel", URL: b.URL},
	)
	apps, err := c.ListApps(context.Background())
	if err != nil {
		t.Fatalf("ListApps: %v", err)
	}
	want := []string{"weather", "finance", "travel"}
	if strings.Join(apps, ",") != strings.Join(want, ",") {
		t.Fatalf("apps = %v, want %v", apps, want)
	}
}

func TestListApps_AllFail(t *testing.T) {
	broken := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	c := NewClient(Endpoint{Name: "x", URL: broken.URL})
	if _, err := c.ListApps(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if _, err := NewClient().ListApps(context.Background()); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expected ErrNoEndpoints, got %v", err)
	}
}

func TestCreateSession(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"s-1","appName":"weather","userId":"42","state":{},"events":[],"lastUpdateTime":1700000000.5}`))
	})

	c := NewClient(Endpoint{Name: "weather", URL: srv.URL + "/"})
	session, err := c.CreateSession(context.Background(), "weather", "42", "s-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if gotPath != "/apps/weather/users/42/sessions/s-1" {
		t.Errorf("path = %s", gotPath)
	}
	if _, ok := gotBody["state"]; !ok {
		t.Errorf("body missing state: %v", gotBody)
	}
	if events, ok := gotBody["events"].([]interface{}); !ok || len(events) != 0 {
		t.Errorf("body events = %v", gotBody["events"])
	}
	if session.ID != "s-1" || session.LastUpdateTime != 1700000000.5 {
		t.Errorf("unexpected session %+v", session)
	}

	if _, err := c.CreateSession(context.Background(), "weather", "42", ""); err != nil {
		t.Fatalf("CreateSession without id: %v", err)
	}
	if gotPath != "/apps/weather/users/42/sessions" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestCreateSession_APIError(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session exists", http.StatusConflict)
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL})

	_, err := c.CreateSession(context.Background(), "weather", "42", "dup")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || !strings.Contains(apiErr.Body, "session exists") {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !strings.HasPrefix(err.Error(), "failed to create session") {
		t.Fatalf("error message = %q", err.Error())
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	c := NewClient(Endpoint{Name: "weather", URL: u})
	_, err := c.GetSession(context.Background(), "weather", "42", "s-1")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if te.Op != "get session" {
		t.Fatalf("op = %q", te.Op)
	}
}

func TestSessionCRUDPaths(t *testing.T) {
	var calls []string
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/sessions"):
			_, _ = w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"a","events":[{"id":"e1","author":"user","timestamp":1,"content":{"role":"user","parts":[{"text":"hi"}]}}]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL})
	ctx := context.Background()

	sessions, err := c.ListSessions(ctx, "weather", "42")
	if err != nil || len(sessions) != 2 {
		t.Fatalf("ListSessions: %v %v", sessions, err)
	}
	session, err := c.GetSession(ctx, "weather", "42", "a")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if text, ok := session.Events[0].FirstText(); !ok || text != "hi" {
		t.Fatalf("first text = %q %v", text, ok)
	}
	if err := c.DeleteSession(ctx, "weather", "42", "a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	want := []string{
		"GET /apps/weather/users/42/sessions",
		"GET /apps/weather/users/42/sessions/a",
		"DELETE /apps/weather/users/42/sessions/a",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v", calls)
	}
}

func TestRun(t *testing.T) {
	var got models.AgentRunRequest
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[{"id":"e1","author":"weather_agent","timestamp":1700000001}]`))
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL})

	req := models.NewUserRunRequest("weather", "42", "s-1", "  what's the forecast?  ")
	events, err := c.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Author != "weather_agent" {
		t.Fatalf("events = %+v", events)
	}
	if got.SessionID != "s-1" || got.NewMessage == nil || got.NewMessage.Role != "user" {
		t.Fatalf("request = %+v", got)
	}
	if got.NewMessage.Parts[0].Text != "what's the forecast?" {
		t.Fatalf("message text = %q", got.NewMessage.Parts[0].Text)
	}
}

func TestRun_UnknownAppFallsBackToFirstEndpoint(t *testing.T) {
	hit := false
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_, _ = w.Write([]byte(`[]`))
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL}, Endpoint{Name: "other", URL: "http://127.0.0.1:1"})
	if _, err := c.Run(context.Background(), models.NewUserRunRequest("unknown", "42", "s", "hi")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hit {
		t.Fatal("first endpoint was not used")
	}
}

func TestRunSSE(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run_sse" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req models.AgentRunRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Streaming {
			t.Error("streaming flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"id\":\"e1\",\"author\":\"agent\",\"partial\":true,\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"id\":\"e2\",\"author\":\"agent\",\"content\":{\"parts\":[{\"text\":\"Hello\"}]}}\n\n")
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL})

	var ids []string
	err := c.RunSSE(context.Background(), models.NewUserRunRequest("weather", "42", "s", "hi"), func(ev models.Event) error {
		ids = append(ids, ev.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("RunSSE: %v", err)
	}
	if strings.Join(ids, ",") != "e1,e2" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestRunSSE_HandlerErrorStops(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"id\":\"e1\"}\n\ndata: {\"id\":\"e2\"}\n\n")
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL})
	stop := errors.New("stop")
	n := 0
	err := c.RunSSE(context.Background(), models.NewUserRunRequest("weather", "42", "s", "hi"), func(models.Event) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err = %v, n = %d", err, n)
	}
}

func TestEventStream(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		": ping\n\n" +
			"event: message\ndata: {\"id\":\"e1\",\r\ndata: \"author\":\"agent\"}\r\n\r\n" +
			"data: [not json]\n\n" +
			"data: {\"id\":\"e2\",\"timestamp\":1700000000.5}"))
	var skipped []string
	s := newEventStream(body, func(data []byte, err error) {
		skipped = append(skipped, string(data))
	})

	ev, err := s.Next()
	if err != nil || ev.ID != "e1" || ev.Author != "agent" {
		t.Fatalf("first event: %+v %v", ev, err)
	}
	ev, err = s.Next()
	if err != nil || ev.ID != "e2" || ev.Timestamp != 1700000000.5 {
		t.Fatalf("second event: %+v %v", ev, err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(skipped) != 1 || skipped[0] != "[not json]" {
		t.Fatalf("skipped = %q", skipped)
	}
}

func TestRunSSE_ErrorFrame(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"id\":\"e1\"}\n\ndata: {\"error\": \"model overloaded\"}\n\ndata: {\"id\":\"e2\"}\n\n")
	})
	c := NewClient(Endpoint{Name: "weather", URL: srv.URL})

	var ids []string
	err := c.RunSSE(context.Background(), models.NewUserRunRequest("weather", "42", "s", "hi"), func(ev models.Event) error {
		ids = append(ids, ev.ID)
		return nil
	})
	var serr *StreamError
	if !errors.As(err, &serr) || serr.Message != "model overloaded" {
		t.Fatalf("err = %v", err)
	}
	if strings.Join(ids, ",") != "e1" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestAddAgentReplaces(t *testing.T) {
	c := NewClient(Endpoint{Name: "a", URL: "http://one/"})
	c.AddAgent("b", "http://two", "second")
	c.AddAgent("a", "http://three", "")

	agents := c.Agents()
	if len(agents) != 2 || agents[0].URL != "http://three" || agents[1].Name != "b" {
		t.Fatalf("agents = %+v", agents)
	}
}
