// Package eventloop provides the cyclic-callback timer facility that drives
// periodic PubSub work (publish intervals, receive-timeout monitoring).
package eventloop

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ua-eventloop")

// Event loop errors.
var (
	ErrClosed           = errors.New("event loop is closed")
	ErrCallbackNotFound = errors.New("cyclic callback not found")
	ErrInvalidInterval  = errors.New("interval must be positive")
)

// CycleMissPolicy controls how a callback is rescheduled after a missed cycle.
type CycleMissPolicy int

const (
	// HandleCycleMissWithCurrentTime restarts the cycle from the current time.
	HandleCycleMissWithCurrentTime CycleMissPolicy = iota
	// HandleCycleMissWithBaseTime realigns the cycle to the original base time.
	HandleCycleMissWithBaseTime
)

// Callback is invoked on a goroutine owned by the event loop (one per cyclic
// callback), not on the caller's goroutine. Callbacks that touch
// shared state must acquire the owning lock themselves.
type Callback func()

type cyclicCallback struct {
	id       uint64
	cb       Callback
	interval time.Duration
	policy   CycleMissPolicy
	baseTime *time.Time

	stop     chan struct{}
	reset    chan struct{}
	stopOnce sync.Once
}

func (c *cyclicCallback) cancel() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Loop schedules cyclic callbacks on per-callback goroutines. The zero value
// is not usable; construct with New.
type Loop struct {
	clk clock.Clock

	mu        sync.Mutex
	nextID    uint64
	callbacks map[uint64]*cyclicCallback
	closed    bool
	wg        sync.WaitGroup
}

// New creates an event loop using the given clock. Pass clock.New() for wall
// time or a mock clock in tests.
func New(clk clock.Clock) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		clk:       clk,
		callbacks: make(map[uint64]*cyclicCallback),
	}
}

// AddCyclicCallback registers cb to fire every interval and returns its
// callback id. The first firing happens one interval from now; with
// HandleCycleMissWithBaseTime and a non-nil baseTime it is aligned to the next
// multiple of interval after baseTime instead. Other policies ignore baseTime.
func (l *Loop) AddCyclicCallback(cb Callback, interval time.Duration, baseTime *time.Time, policy CycleMissPolicy) (uint64, error) {
	if interval <= 0 {
		return 0, ErrInvalidInterval
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	l.nextID++
	c := &cyclicCallback{
		id:       l.nextID,
		cb:       cb,
		interval: interval,
		policy:   policy,
		baseTime: baseTime,
		stop:     make(chan struct{}),
		reset:    make(chan struct{}, 1),
	}
	l.callbacks[c.id] = c
	l.wg.Add(1)
	l.mu.Unlock()

	go l.run(c)

	log.Debugf("added cyclic callback %d, interval %v", c.id, interval)
	return c.id, nil
}

// ModifyCyclicCallback changes the interval (and optionally base time and
// policy) of an existing callback. The running cycle restarts with the new
// interval.
func (l *Loop) ModifyCyclicCallback(id uint64, interval time.Duration, baseTime *time.Time, policy CycleMissPolicy) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	l.mu.Lock()
	c, ok := l.callbacks[id]
	if !ok {
		l.mu.Unlock()
		return ErrCallbackNotFound
	}
	c.interval = interval
	c.baseTime = baseTime
	c.policy = policy
	l.mu.Unlock()

	// Kick the runner so the new interval takes effect immediately.
	select {
	case c.reset <- struct{}{}:
	default:
	}
	return nil
}

// RemoveCyclicCallback unregisters a callback. Safe to call from within the
// callback itself; an unknown id is ignored.
func (l *Loop) RemoveCyclicCallback(id uint64) {
	l.mu.Lock()
	c, ok := l.callbacks[id]
	if ok {
		delete(l.callbacks, id)
	}
	l.mu.Unlock()
	if ok {
		c.cancel()
		log.Debugf("removed cyclic callback %d", id)
	}
}

// Close stops all callbacks and waits for their goroutines to exit. Close must
// not be called from a callback.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := make([]*cyclicCallback, 0, len(l.callbacks))
	for _, c := range l.callbacks {
		pending = append(pending, c)
	}
	l.callbacks = make(map[uint64]*cyclicCallback)
	l.mu.Unlock()

	for _, c := range pending {
		c.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) run(c *cyclicCallback) {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		interval := c.interval
		base := c.baseTime
		policy := c.policy
		l.mu.Unlock()

		wait := interval
		if base != nil && policy == HandleCycleMissWithBaseTime {
			wait = nextAlignedDelay(l.clk.Now(), *base, interval)
		}

		t := l.clk.Timer(wait)
		select {
		case <-t.C:
			select {
			case <-c.stop:
				return
			default:
			}
			c.cb()
		case <-c.reset:
			t.Stop()
		case <-c.stop:
			t.Stop()
			return
		}
	}
}

// nextAlignedDelay returns the delay until the next multiple of interval after
// base that lies in the future.
func nextAlignedDelay(now, base time.Time, interval time.Duration) time.Duration {
	if !now.After(base) {
		return base.Sub(now)
	}
	elapsed := now.Sub(base)
	rem := elapsed % interval
	return interval - rem
}
