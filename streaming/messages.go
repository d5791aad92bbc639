package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/NoiseDigital/agent-development-environment/models"
)

// InboundMessage is one classified server frame. Exactly one of
// SessionCreated, TurnComplete, Interrupted, AudioChunk, TextChunk or Unknown.
type InboundMessage interface {
	inbound()
}

type SessionCreated struct {
	SessionID string
}

type TurnComplete struct{}

type Interrupted struct{}

type AudioChunk struct {
	PCM []byte
}

type TextChunk struct {
	Text string
}

// Unknown carries frames of no defined shape; they are ignored.
type Unknown struct {
	Raw json.RawMessage
}

func (SessionCreated) inbound() {}
func (TurnComplete) inbound()   {}
func (Interrupted) inbound()    {}
func (AudioChunk) inbound()     {}
func (TextChunk) inbound()      {}
func (Unknown) inbound()        {}

// DecodeInbound classifies a raw frame. The checks run in protocol order, so a
// frame carrying both turn_complete and interrupted is a TurnComplete.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var msg models.Stream_Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid inbound frame: %w", err)
	}

	switch {
	case msg.Type == "session_created":
		return SessionCreated{SessionID: msg.SessionID}, nil
	case msg.TurnComplete:
		return TurnComplete{}, nil
	case msg.Interrupted:
		return Interrupted{}, nil
	case msg.MimeType == models.MimeTypePCM:
		pcm, err := DecodeFrame(msg.Data)
		if err != nil {
			return nil, err
		}
		return AudioChunk{PCM: pcm}, nil
	case msg.MimeType == models.MimeTypeText:
		return TextChunk{Text: msg.Data}, nil
	default:
		return Unknown{Raw: json.RawMessage(data)}, nil
	}
}

// OutboundMessage is a frame sent to the server.
type OutboundMessage = models.Client_Stream_Message

// TextMessage builds a text/plain frame.
func TextMessage(text string) OutboundMessage {
	return OutboundMessage{MimeType: models.MimeTypeText, Data: text}
}

// AudioMessage builds an audio/pcm frame from raw bytes.
func AudioMessage(pcm []byte) OutboundMessage {
	return OutboundMessage{MimeType: models.MimeTypePCM, Data: EncodeFrame(pcm)}
}
