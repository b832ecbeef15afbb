package media

import (
	"sync"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/rs/zerolog"
)

// Loader waits a bounded number of attempts for a provider SDK to become
// available before giving up silently.
type Loader struct {
	Name     string
	Clock    clock.Clock
	Interval time.Duration
	Attempts int
	Logger   zerolog.Logger
}

// Wait calls onReady once ready reports true. When it already does, onReady
// runs synchronously and Wait returns nil. Otherwise the returned Timer
// cancels the remaining attempts.
func (l Loader) Wait(ready func() bool, onReady func()) clock.Timer {
	if ready() {
		onReady()
		return nil
	}
	w := &waiter{loader: l, ready: ready, onReady: onReady}
	w.mu.Lock()
	w.timer = l.Clock.AfterFunc(l.Interval, w.attempt)
	w.mu.Unlock()
	return w
}

type waiter struct {
	loader  Loader
	ready   func() bool
	onReady func()

	mu       sync.Mutex
	tries    int
	timer    clock.Timer
	finished bool
}

func (w *waiter) attempt() {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return
	}
	w.tries++
	tries := w.tries
	w.mu.Unlock()

	if w.ready() {
		w.finish()
		w.onReady()
		return
	}
	if tries >= w.loader.Attempts {
		w.finish()
		w.loader.Logger.Debug().
			Str("sdk", w.loader.Name).
			Int("attempts", tries).
			Msg("SDK never became available, giving up")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.finished {
		w.timer = w.loader.Clock.AfterFunc(w.loader.Interval, w.attempt)
	}
}

func (w *waiter) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finished = true
}

func (w *waiter) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return false
	}
	w.finished = true
	if w.timer != nil {
		w.timer.Stop()
	}
	return true
}
