package chat

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/NoiseDigital/agent-development-environment/models"
)

// Message is one displayable chat entry derived from a backend event.
type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Author    string         `json:"author"`
	Timestamp int64          `json:"timestamp"` // unix ms
	Charts    []models.Chart `json:"charts,omitempty"`
	Pending   bool           `json:"pending,omitempty"`
}

// ParseAgentPayload extracts {text, visualization} from an agent reply.
// Anything that is not such an object is returned unchanged with no charts.
func ParseAgentPayload(raw string) (string, []models.Chart) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw, nil
	}

	var payload models.AgentPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		log.Printf("Warning: agent reply is not a chart payload, showing as text: %v", err)
		return raw, nil
	}
	if payload.Text == nil {
		return raw, nil
	}

	var charts []models.Chart
	for _, chart := range payload.Visualization {
		if !chart.Type.Valid() {
			log.Printf("Warning: dropping chart with unsupported type %q", chart.Type)
			continue
		}
		charts = append(charts, chart)
	}
	return *payload.Text, charts
}

// EventsToMessages projects events into chat messages in backend order.
// Events without text are skipped.
func EventsToMessages(events []models.Event) []Message {
	messages := make([]Message, 0, len(events))
	for _, event := range events {
		text, ok := event.FirstText()
		if !ok {
			continue
		}
		content, charts := ParseAgentPayload(text)
		messages = append(messages, Message{
			ID:        event.ID,
			Content:   content,
			Author:    event.Author,
			Timestamp: NormalizeTimestamp(event.Timestamp),
			Charts:    charts,
		})
	}
	return messages
}
