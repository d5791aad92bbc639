package streaming

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NoiseDigital/agent-development-environment/models"
	"github.com/NoiseDigital/agent-development-environment/stores"
)

const (
	DefaultSwitchDelay    = 100 * time.Millisecond
	DefaultReconnectDelay = 5 * time.Second
)

var (
	// ErrNotOpen is returned by Send when no transport is open.
	ErrNotOpen = errors.New("streaming: link not open")
	// ErrClosed is returned once the link has been closed.
	ErrClosed = errors.New("streaming: link closed")
)

// State is the lifecycle state of a Link.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnectPending:
		return "reconnect_pending"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Mode selects text-only or audio-enabled sessions.
type Mode int

const (
	ModeText Mode = iota
	ModeAudio
)

func (m Mode) String() string {
	if m == ModeAudio {
		return "audio"
	}
	return "text"
}

// Transport is one duplex connection. *websocket.Conn implements it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (d WebSocketDialer) Dial(ctx context.Context, u string) (Transport, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wd := websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	conn, _, err := wd.DialContext(ctx, u, d.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// LinkOptions configures a Link. Only UserID (or a Store holding one) is required.
type LinkOptions struct {
	Host   string
	Secure bool
	UserID string

	SwitchDelay    time.Duration
	ReconnectDelay time.Duration

	Dialer Dialer
	Sink   PlaybackSink

	Store  stores.LinkStore
	Traces stores.TraceStore

	Logger      *log.Logger
	EventBuffer int
}

// Link owns the single live connection to the backend. All connection state
// lives in one event-loop goroutine; public methods post requests to it.
type Link struct {
	opts   LinkOptions
	dialer Dialer
	router *Router
	logger *log.Logger

	in     chan linkEvent
	events chan Event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	// snapshot for accessors
	mu        sync.Mutex
	snapState State
	snapMode  Mode
	snapSess  string

	// owned by the loop goroutine
	state      State
	mode       Mode
	userID     string
	sessionID  string
	gen        uint64
	conn       Transport
	cancelDial context.CancelFunc
	timer      *time.Timer
	timerSeq   uint64
	timerToken uint64
}

type linkEvent interface{}

type connectReq struct {
	mode      Mode
	sessionID string
}

type disconnectReq struct {
	done chan struct{}
}

type timerFired struct {
	token  uint64
	reason string
}

type dialResult struct {
	gen  uint64
	conn Transport
	err  error
}

type frameIn struct {
	gen  uint64
	data []byte
}

type transportClosed struct {
	gen uint64
	err error
}

type sendReq struct {
	msg   OutboundMessage
	reply chan error
}

// NewLink creates a link in StateDisconnected and starts its event loop.
func NewLink(opts LinkOptions) (*Link, error) {
	if opts.SwitchDelay <= 0 {
		opts.SwitchDelay = DefaultSwitchDelay
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Host == "" {
		opts.Host = DefaultHost()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = WebSocketDialer{}
	}

	userID, sessionID, err := resolveIdentity(opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, fmt.Sprintf("[LINK %s] ", userID), log.LstdFlags)
	}

	l := &Link{
		opts:      opts,
		dialer:    dialer,
		logger:    logger,
		in:        make(chan linkEvent, 64),
		events:    make(chan Event, opts.EventBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		userID:    userID,
		sessionID: sessionID,
		snapSess:  sessionID,
	}

	l.router = NewRouter(opts.Sink, l.emit)
	l.router.Logger = logger
	l.router.OnSession = l.onSessionCreated
	l.router.Text.OnComplete = func(unitID, text string) {
		l.saveTurn("agent", unitID, text)
	}

	go l.run()
	return l, nil
}

// resolveIdentity picks the user id (explicit, remembered, or generated) and
// the remembered session id.
func resolveIdentity(opts LinkOptions) (string, string, error) {
	userID := opts.UserID
	sessionID := ""

	if opts.Store != nil {
		ident, err := opts.Store.LoadIdentity(opts.Host)
		if err != nil {
			return "", "", fmt.Errorf("failed to load identity: %w", err)
		}
		if ident != nil && (userID == "" || userID == ident.UserID) {
			userID = ident.UserID
			sessionID = ident.SessionID
		}
	}
	if userID == "" {
		userID = NewUserID()
	}
	if opts.Store != nil {
		if _, err := opts.Store.SaveIdentity(opts.Host, userID); err != nil {
			return "", "", fmt.Errorf("failed to save identity: %w", err)
		}
	}
	return userID, sessionID, nil
}

// NewUserID returns a random numeric user id, the form the backend expects.
func NewUserID() string {
	return strconv.FormatUint(uint64(uuid.New().ID()), 10)
}

// Events delivers UI-facing events. It is closed by Close.
func (l *Link) Events() <-chan Event { return l.events }

func (l *Link) UserID() string { return l.userID }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapState
}

func (l *Link) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapMode
}

// SessionID returns the remembered session id.
func (l *Link) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapSess
}

// Connect (re)connects in mode. An empty sessionID keeps the remembered one.
// A live transport is detached and closed first, and the new dial waits SwitchDelay.
func (l *Link) Connect(mode Mode, sessionID string) error {
	if !l.post(connectReq{mode: mode, sessionID: sessionID}) {
		return ErrClosed
	}
	return nil
}

// SetMode switches between text and audio, keeping the session.
func (l *Link) SetMode(mode Mode) error {
	return l.Connect(mode, "")
}

// Disconnect closes the transport without scheduling a reconnect.
func (l *Link) Disconnect() error {
	done := make(chan struct{})
	if !l.post(disconnectReq{done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
	case <-l.done:
	}
	return nil
}

// Send writes one frame. It fails with ErrNotOpen unless the link is open.
func (l *Link) Send(msg OutboundMessage) error {
	reply := make(chan error, 1)
	if !l.post(sendReq{msg: msg, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return ErrClosed
	}
}

// SendText sends a text/plain frame.
func (l *Link) SendText(text string) error {
	return l.Send(TextMessage(text))
}

// Close disconnects and stops the event loop. Safe to call more than once.
func (l *Link) Close() error {
	l.once.Do(func() {
		close(l.quit)
	})
	<-l.done
	return nil
}

func (l *Link) post(ev linkEvent) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.in <- ev:
		return true
	case <-l.quit:
		return false
	}
}

func (l *Link) run() {
	defer close(l.done)
	defer close(l.events)

	for {
		select {
		case <-l.quit:
			l.teardown("closed")
			return
		case ev := <-l.in:
			l.handle(ev)
		}
	}
}

func (l *Link) handle(ev linkEvent) {
	switch e := ev.(type) {
	case connectReq:
		l.handleConnect(e)
	case disconnectReq:
		l.teardown("disconnect")
		close(e.done)
	case timerFired:
		if e.token != l.timerToken {
			return
		}
		l.timer = nil
		l.timerToken = 0
		l.startDial(e.reason)
	case dialResult:
		l.handleDialResult(e)
	case frameIn:
		if e.gen != l.gen {
			return
		}
		msg, err := DecodeInbound(e.data)
		if err != nil {
			l.logger.Printf("Dropping frame: %v", err)
			return
		}
		l.router.Dispatch(msg)
	case transportClosed:
		if e.gen != l.gen {
			return
		}
		if e.err != nil {
			l.logger.Printf("Connection closed: %v", e.err)
		}
		l.conn = nil
		l.router.Text.Reset()
		l.scheduleReconnect("connection closed")
	case sendReq:
		e.reply <- l.handleSend(e.msg)
	}
}

func (l *Link) handleConnect(req connectReq) {
	l.mode = req.mode
	if req.sessionID != "" {
		l.sessionID = req.sessionID
	}
	l.publish()

	// A switch is already waiting out SwitchDelay; it dials with the latest mode.
	if l.state == StateClosing && l.timer != nil {
		return
	}
	l.cancelTimer()

	if l.conn != nil || l.state == StateConnecting {
		l.detach()
		l.setState(StateClosing, "switching to "+l.mode.String())
		l.schedule(l.opts.SwitchDelay, "switch")
		return
	}
	l.startDial("connect")
}

// detach makes the current transport stale and closes it. Its close no
// longer reaches the loop as a live event.
func (l *Link) detach() {
	l.gen++
	if l.cancelDial != nil {
		l.cancelDial()
		l.cancelDial = nil
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.logger.Printf("Error closing transport: %v", err)
		}
		l.conn = nil
	}
	l.router.Text.Reset()
}

func (l *Link) teardown(reason string) {
	l.cancelTimer()
	if l.state == StateDisconnected {
		return
	}
	wasLive := l.conn != nil || l.state == StateConnecting
	l.detach()
	if wasLive {
		l.setState(StateClosing, reason)
	}
	l.setState(StateDisconnected, reason)
}

func (l *Link) startDial(reason string) {
	l.gen++
	gen := l.gen

	u, err := BuildURL(ConnectConfig{
		Host:      l.opts.Host,
		Secure:    l.opts.Secure,
		UserID:    l.userID,
		Audio:     l.mode == ModeAudio,
		SessionID: l.sessionID,
	})
	if err != nil {
		l.logger.Printf("Cannot build URL: %v", err)
		l.setState(StateDisconnected, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancelDial = cancel
	l.setState(StateConnecting, reason)
	l.logger.Printf("Connecting to %s", u)

	go func() {
		conn, err := l.dialer.Dial(ctx, u)
		if !l.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (l *Link) handleDialResult(r dialResult) {
	if r.gen != l.gen {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		return
	}
	if l.cancelDial != nil {
		l.cancelDial()
		l.cancelDial = nil
	}
	if r.err != nil {
		l.logger.Printf("Dial failed: %v", r.err)
		l.scheduleReconnect("dial failed")
		return
	}

	l.conn = r.conn
	l.router.Text.Reset()
	l.setState(StateOpen, "connected")
	go l.readLoop(r.gen, r.conn)
}

func (l *Link) readLoop(gen uint64, conn Transport) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.post(transportClosed{gen: gen, err: err})
			return
		}
		if !l.post(frameIn{gen: gen, data: data}) {
			return
		}
	}
}

func (l *Link) handleSend(msg OutboundMessage) error {
	if l.state != StateOpen || l.conn == nil {
		return ErrNotOpen
	}
	if err := l.conn.WriteJSON(msg); err != nil {
		l.logger.Printf("Write failed: %v", err)
		return fmt.Errorf("failed to send frame: %w", err)
	}
	if msg.MimeType == models.MimeTypeText {
		l.saveTurn("user", uuid.New().String(), msg.Data)
	}
	return nil
}

func (l *Link) scheduleReconnect(reason string) {
	l.setState(StateReconnectPending, reason)
	l.logger.Printf("Reconnecting in %s", l.opts.ReconnectDelay)
	l.schedule(l.opts.ReconnectDelay, "reconnect")
}

func (l *Link) schedule(d time.Duration, reason string) {
	l.cancelTimer()
	l.timerSeq++
	token := l.timerSeq
	l.timerToken = token
	l.timer = time.AfterFunc(d, func() {
		l.post(timerFired{token: token, reason: reason})
	})
}

func (l *Link) cancelTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerToken = 0
}

func (l *Link) onSessionCreated(sessionID string) {
	if sessionID == "" || sessionID == l.sessionID {
		return
	}
	l.logger.Printf("Session ID updated by server: %s", sessionID)
	l.sessionID = sessionID
	l.publish()
	if l.opts.Store != nil {
		if err := l.opts.Store.SaveSessionID(l.opts.Host, sessionID); err != nil {
			l.logger.Printf("Error saving session id: %v", err)
		}
	}
}

func (l *Link) saveTurn(role, unitID, text string) {
	if l.opts.Store == nil || l.sessionID == "" {
		return
	}
	if err := l.opts.Store.SaveTurn(l.sessionID, role, unitID, text); err != nil {
		l.logger.Printf("Error saving %s turn: %v", role, err)
	}
}

func (l *Link) setState(to State, reason string) {
	from := l.state
	if from == to {
		return
	}
	l.state = to
	l.publish()
	l.emit(StateEvent{From: from, To: to, Reason: reason})

	if l.opts.Traces != nil {
		trace := &stores.LinkTrace{
			UserID:    l.userID,
			SessionID: l.sessionID,
			From:      from.String(),
			To:        to.String(),
			Reason:    reason,
			Mode:      l.mode.String(),
		}
		if err := l.opts.Traces.SaveTrace(trace); err != nil {
			l.logger.Printf("Error saving trace: %v", err)
		}
	}
}

func (l *Link) publish() {
	l.mu.Lock()
	l.snapState = l.state
	l.snapMode = l.mode
	l.snapSess = l.sessionID
	l.mu.Unlock()
}

func (l *Link) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		l.logger.Printf("Event buffer full, dropping %T", ev)
	}
}
