package models

// MIME types carried by the streaming protocol.
const (
	MimeTypePCM  = "audio/pcm"
	MimeTypeText = "text/plain"
)

// Stream_Message is the wire shape of a frame received from /ws/{user}.
// Only one of the groups is populated by the server:
// {type, session_id} or {turn_complete, interrupted} or {mime_type, data}.
type Stream_Message struct {
	Type         string `json:"type,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	TurnComplete bool   `json:"turn_complete,omitempty"`
	Interrupted  bool   `json:"interrupted,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Data         string `json:"data,omitempty"`
}

// Client_Stream_Message is a frame sent to the server.
type Client_Stream_Message struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}
