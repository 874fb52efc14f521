package typewriter

import (
	"context"
	"sync"
	"time"
)

const DefaultSpeed = 30 * time.Millisecond

// Typewriter reveals a known text one character at a time on a timer. It is
// presentation only and safe for concurrent use.
type Typewriter struct {
	mu sync.Mutex

	full  []rune
	index int

	speed      time.Duration
	delay      time.Duration
	onComplete func()
	onTick     func(displayed string)

	typing   bool
	complete bool
	// fired is set once completion has been reported in the current cycle
	fired bool

	stop chan struct{}
	done chan struct{}
}

type Option func(*Typewriter)

// WithSpeed sets the interval between revealed characters
func WithSpeed(d time.Duration) Option {
	return func(t *Typewriter) {
		if d > 0 {
			t.speed = d
		}
	}
}

// WithDelay sets a pause before the first character of a run
func WithDelay(d time.Duration) Option {
	return func(t *Typewriter) {
		t.delay = d
	}
}

func WithOnComplete(fn func()) Option {
	return func(t *Typewriter) {
		t.onComplete = fn
	}
}

func WithOnTick(fn func(displayed string)) Option {
	return func(t *Typewriter) {
		t.onTick = fn
	}
}

func New(fullText string, opts ...Option) *Typewriter {
	t := &Typewriter{
		full:  []rune(fullText),
		speed: DefaultSpeed,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins revealing from the current position, which is 0 for a new or
// reset instance. It does nothing while already typing.
func (t *Typewriter) Start() {
	t.mu.Lock()
	if t.typing {
		t.mu.Unlock()
		return
	}

	if t.index >= len(t.full) {
		t.complete = true
		fire := t.markFired()
		t.mu.Unlock()
		if fire {
			t.onComplete()
		}
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	// a run with text left to reveal is a new cycle
	t.typing = true
	t.complete = false
	t.fired = false
	t.stop = stop
	t.done = done
	t.mu.Unlock()

	go t.run(stop, done)
}

func (t *Typewriter) run(stop, done chan struct{}) {
	defer close(done)

	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}
	}

	ticker := time.NewTicker(t.speed)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.tick(stop) {
				return
			}
		}
	}
}

// tick reveals one character and reports whether the run continues
func (t *Typewriter) tick(stop chan struct{}) bool {
	t.mu.Lock()
	if t.stop != stop {
		t.mu.Unlock()
		return false
	}

	if t.index < len(t.full) {
		t.index++
	}
	displayed := string(t.full[:t.index])

	finished := t.index >= len(t.full)
	var fire bool
	if finished {
		t.typing = false
		t.complete = true
		t.stop = nil
		fire = t.markFired()
	}
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(displayed)
	}
	if fire {
		t.onComplete()
	}
	return !finished
}

// markFired must be called with mu held. It reports whether the completion
// callback should run.
func (t *Typewriter) markFired() bool {
	if t.fired {
		return false
	}
	t.fired = true
	return t.onComplete != nil
}

func (t *Typewriter) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.typing = false
}

// Stop pauses revealing. Start resumes from the same position.
func (t *Typewriter) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Reset stops and rewinds to an empty display, starting a new cycle
func (t *Typewriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.index = 0
	t.complete = false
	t.fired = false
}

// SkipToEnd shows the full text immediately and reports completion
func (t *Typewriter) SkipToEnd() {
	t.mu.Lock()
	t.stopLocked()
	t.index = len(t.full)
	t.complete = true
	fire := t.markFired()
	t.mu.Unlock()

	if fire {
		t.onComplete()
	}
}

// UpdateFullText replaces the text to reveal. An extension of the displayed
// text keeps the position; any other text rewinds to the start, and typing
// continues if it was running.
func (t *Typewriter) UpdateFullText(text string) {
	next := []rune(text)

	t.mu.Lock()
	if hasPrefix(next, t.full[:t.index]) {
		t.full = next
		if t.index < len(t.full) {
			t.complete = false
		}
		t.mu.Unlock()
		return
	}

	wasTyping := t.typing
	t.stopLocked()
	t.full = next
	t.index = 0
	t.complete = false
	t.fired = false
	t.mu.Unlock()

	if wasTyping {
		t.Start()
	}
}

// Wait blocks until the current run stops
func (t *Typewriter) Wait(ctx context.Context) error {
	t.mu.Lock()
	if !t.typing {
		t.mu.Unlock()
		return nil
	}
	done := t.done
	t.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Typewriter) Displayed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.full[:t.index])
}

func (t *Typewriter) FullText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.full)
}

func (t *Typewriter) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

func (t *Typewriter) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}

func hasPrefix(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}
