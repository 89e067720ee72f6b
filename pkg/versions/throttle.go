package versions

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultWindow is the broadcast coalescing window.
const DefaultWindow = 500 * time.Millisecond

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks github.com/matzehuels/stacksync/pkg/versions Notifier

// Notifier receives drained deltas. Implementations must not block for long;
// the server hub fans out to websocket clients asynchronously.
type Notifier interface {
	Broadcast(delta map[string]Versions)
}

// Throttle emits at most one broadcast per window. Unlike a debouncer it does
// not push the deadline back on new writes: the first Schedule in a quiet
// period opens the window and everything written before it closes goes out
// together.
type Throttle struct {
	mu       sync.Mutex
	cache    *Cache
	notifier Notifier
	window   time.Duration
	timer    *time.Timer
	stopped  bool
	logger   *log.Logger
}

// NewThrottle creates a throttle draining cache into notifier and attaches
// it to the cache. A nil notifier drains without emitting. A non-positive
// window selects [DefaultWindow].
func NewThrottle(cache *Cache, notifier Notifier, window time.Duration, logger *log.Logger) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = log.Default()
	}
	t := &Throttle{cache: cache, notifier: notifier, window: window, logger: logger}
	cache.Attach(t)
	return t
}

// SetNotifier swaps the notifier. Used when the server hub starts after the
// orchestrator was built.
func (t *Throttle) SetNotifier(n Notifier) {
	t.mu.Lock()
	t.notifier = n
	t.mu.Unlock()
}

// Schedule opens a window if none is open.
func (t *Throttle) Schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.window, t.fire)
}

func (t *Throttle) fire() {
	t.mu.Lock()
	t.timer = nil
	if t.stopped {
		t.mu.Unlock()
		return
	}
	n := t.notifier
	t.mu.Unlock()

	t.emit(n)
}

// Flush cancels a pending window and emits the delta synchronously.
func (t *Throttle) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		if !t.timer.Stop() {
			// already firing
			t.mu.Unlock()
			return
		}
		t.timer = nil
	}
	n := t.notifier
	t.mu.Unlock()

	t.emit(n)
}

// Stop cancels any pending window. Later schedules are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Throttle) emit(n Notifier) {
	delta := t.cache.Drain()
	if len(delta) == 0 || n == nil {
		return
	}
	t.logger.Debug("broadcasting version delta", "packages", len(delta))
	n.Broadcast(delta)
}
