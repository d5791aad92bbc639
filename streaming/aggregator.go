package streaming

import (
	"log"
	"os"
	"sync"
	"time"
)

// DefaultFlushInterval is the audio batching window.
const DefaultFlushInterval = 200 * time.Millisecond

// Sender transmits one outbound frame. *Link implements it.
type Sender interface {
	Send(msg OutboundMessage) error
}

// Aggregator batches captured PCM chunks into one audio/pcm frame per interval.
type Aggregator struct {
	sender   Sender
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	pending [][]byte
	running bool
	done    chan struct{}
	stopped chan struct{}
}

func NewAggregator(sender Sender, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Aggregator{
		sender:   sender,
		interval: interval,
		logger:   log.New(os.Stdout, "[AGG] ", log.LstdFlags),
	}
}

// SetLogger replaces the default logger.
func (a *Aggregator) SetLogger(l *log.Logger) {
	if l != nil {
		a.logger = l
	}
}

// Push queues a copy of chunk and starts the flush ticker if needed.
func (a *Aggregator) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, c)
	if !a.running {
		a.running = true
		a.done = make(chan struct{})
		a.stopped = make(chan struct{})
		go a.loop(a.done, a.stopped)
	}
}

func (a *Aggregator) loop(done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			a.Flush()
		}
	}
}

// Flush sends everything pending as one frame. No-op when empty.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked()
}

func (a *Aggregator) flushLocked() {
	if len(a.pending) == 0 {
		return
	}
	buf := Concat(a.pending)
	a.pending = nil
	if err := a.sender.Send(AudioMessage(buf)); err != nil {
		a.logger.Printf("Dropping %d bytes of audio: %v", len(buf), err)
	}
}

// Pending reports the number of buffered bytes.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.pending {
		n += len(c)
	}
	return n
}

// Stop halts the ticker and flushes what remains. The stopped ticker does not
// fire after Stop returns; a later Push starts a fresh one.
func (a *Aggregator) Stop() {
	var stopped chan struct{}
	a.mu.Lock()
	if a.running {
		close(a.done)
		a.running = false
		stopped = a.stopped
	}
	a.mu.Unlock()

	if stopped != nil {
		<-stopped
	}
	a.Flush()
}
