package models

import (
	"strings"

	"google.golang.org/genai"
)

// Session is the backend-held conversation state returned by the ADK server.
type Session struct {
	ID             string                 `json:"id"`
	AppName        string                 `json:"appName"`
	UserID         string                 `json:"userId"`
	State          map[string]interface{} `json:"state"`
	Events         []Event                `json:"events"`
	LastUpdateTime float64                `json:"lastUpdateTime"`
}

// Event is an immutable record emitted by the backend for a session.
type Event struct {
	ID           string         `json:"id"`
	InvocationID string         `json:"invocationId,omitempty"`
	Author       string         `json:"author"`
	Content      *genai.Content `json:"content,omitempty"`
	Timestamp    float64        `json:"timestamp"`
	TurnComplete *bool          `json:"turnComplete,omitempty"`
	Partial      *bool          `json:"partial,omitempty"`
	Interrupted  *bool          `json:"interrupted,omitempty"`
}

// FirstText returns the first non-empty text part of the event.
func (e Event) FirstText() (string, bool) {
	if e.Content == nil {
		return "", false
	}
	for _, part := range e.Content.Parts {
		if part != nil && part.Text != "" {
			return part.Text, true
		}
	}
	return "", false
}

// AgentRunRequest is the body of POST /run and POST /run_sse.
type AgentRunRequest struct {
	AppName    string         `json:"appName"`
	UserID     string         `json:"userId"`
	SessionID  string         `json:"sessionId"`
	NewMessage *genai.Content `json:"newMessage"`
	Streaming  bool           `json:"streaming"`
}

// NewUserRunRequest builds a run request carrying a single user text part.
func NewUserRunRequest(appName, userID, sessionID, text string) AgentRunRequest {
	return AgentRunRequest{
		AppName:    appName,
		UserID:     userID,
		SessionID:  sessionID,
		NewMessage: genai.NewContentFromText(strings.TrimSpace(text), genai.RoleUser),
	}
}

// CreateSessionRequest is the body sent when creating a session.
type CreateSessionRequest struct {
	State  map[string]interface{} `json:"state"`
	Events []Event                `json:"events"`
}
