package streaming

import (
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
)

// PlaybackSink consumes decoded agent audio.
type PlaybackSink interface {
	Enqueue(pcm []byte)
	// Flush discards everything queued but not yet played.
	Flush()
}

// DiscardSink drops all audio.
type DiscardSink struct{}

func (DiscardSink) Enqueue([]byte) {}
func (DiscardSink) Flush()         {}

// TextAccumulator rebuilds streamed text fragments into one unit per turn.
// It is not safe for concurrent use; a Link only touches it from its event loop.
type TextAccumulator struct {
	unitID string
	buf    strings.Builder

	// OnComplete, when set, receives every closed unit that carried text.
	OnComplete func(unitID, text string)
	newID      func() string
}

func NewTextAccumulator() *TextAccumulator {
	return &TextAccumulator{newID: func() string { return uuid.New().String() }}
}

// Append adds a fragment, opening a new unit if none is open.
func (a *TextAccumulator) Append(delta string) (unitID, text string) {
	if a.unitID == "" {
		a.unitID = a.newID()
		a.buf.Reset()
	}
	a.buf.WriteString(delta)
	return a.unitID, a.buf.String()
}

// Open returns the id of the open unit, or "".
func (a *TextAccumulator) Open() string {
	return a.unitID
}

// Close ends the open unit. ok is false when no unit was open.
func (a *TextAccumulator) Close() (unitID, text string, ok bool) {
	if a.unitID == "" {
		return "", "", false
	}
	unitID, text = a.unitID, a.buf.String()
	a.unitID = ""
	a.buf.Reset()
	if text != "" && a.OnComplete != nil {
		a.OnComplete(unitID, text)
	}
	return unitID, text, true
}

// Reset closes any open unit so the next fragment starts a new one.
func (a *TextAccumulator) Reset() {
	a.Close()
}

// Router applies classified inbound messages to playback and text state.
type Router struct {
	Sink PlaybackSink
	Text *TextAccumulator

	// OnSession receives the id carried by session_created.
	OnSession func(sessionID string)
	// Emit receives UI-facing events.
	Emit func(Event)

	Logger *log.Logger
}

func NewRouter(sink PlaybackSink, emit func(Event)) *Router {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Router{
		Sink:   sink,
		Text:   NewTextAccumulator(),
		Emit:   emit,
		Logger: log.New(os.Stdout, "[ROUTER] ", log.LstdFlags),
	}
}

// Dispatch handles one message. Unknown messages are ignored.
func (r *Router) Dispatch(msg InboundMessage) {
	switch m := msg.(type) {
	case SessionCreated:
		r.Text.Reset()
		if r.OnSession != nil {
			r.OnSession(m.SessionID)
		}
	case TurnComplete:
		unitID, text, _ := r.Text.Close()
		r.emit(TurnCompleteEvent{UnitID: unitID, Text: text})
	case Interrupted:
		r.Sink.Flush()
		r.emit(InterruptedEvent{})
	case AudioChunk:
		r.Sink.Enqueue(m.PCM)
	case TextChunk:
		unitID, text := r.Text.Append(m.Text)
		r.emit(TextEvent{UnitID: unitID, Delta: m.Text, Text: text})
	case Unknown:
		r.Logger.Printf("Ignoring unrecognized message: %s", string(m.Raw))
	}
}

func (r *Router) emit(ev Event) {
	if r.Emit != nil {
		r.Emit(ev)
	}
}
