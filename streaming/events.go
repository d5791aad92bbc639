package streaming

// Event is a UI-facing notification emitted by a Link.
type Event interface {
	event()
}

// StateEvent reports a lifecycle transition. To == StateOpen is the
// "connected" signal.
type StateEvent struct {
	From   State
	To     State
	Reason string
}

// TextEvent reports a text fragment appended to the open unit. Text is the
// unit's content so far.
type TextEvent struct {
	UnitID string
	Delta  string
	Text   string
}

// TurnCompleteEvent closes a turn. UnitID and Text are empty when the turn
// carried no text.
type TurnCompleteEvent struct {
	UnitID string
	Text   string
}

// InterruptedEvent reports that queued playback was discarded.
type InterruptedEvent struct{}

func (StateEvent) event()        {}
func (TextEvent) event()         {}
func (TurnCompleteEvent) event() {}
func (InterruptedEvent) event()  {}
