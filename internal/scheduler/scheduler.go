// Package scheduler drives per-folder polling. Each monitored folder owns
// one PollingScheduler; folders progress independently with no global scan
// queue. Scans for a single folder are strictly sequential: the next timer
// is armed only after the previous scan has fully resolved.
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"
)

// Backoff parameters. No penalty is applied until consecutive failures
// exceed BackoffThreshold; past it the interval grows by BackoffMultiplier
// per additional failure, capped at MaxInterval.
const (
	BackoffMultiplier = 1.5
	BackoffThreshold  = 3
	MaxInterval       = 300_000 * time.Millisecond
)

// State is the scheduler's lifecycle state.
type State string

// Scheduler states.
const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateBackoff  State = "backoff"
	StateStopped  State = "stopped"
)

// NextInterval computes the delay before the next scan given the base
// interval and the current consecutive failure count.
func NextInterval(base time.Duration, consecutiveErrors int) time.Duration {
	if consecutiveErrors <= BackoffThreshold {
		return base
	}
	scaled := float64(base) * math.Pow(BackoffMultiplier, float64(consecutiveErrors-BackoffThreshold))
	if scaled > float64(MaxInterval) {
		return MaxInterval
	}
	return time.Duration(scaled)
}

// ScanFunc performs one scan cycle. A nil return resets the failure count;
// an error counts as one consecutive failure and triggers backoff.
type ScanFunc func(ctx context.Context) error

// PollingScheduler runs a ScanFunc on a timer with failure backoff.
//
// Start triggers an immediate scan before the first timer tick. Stop
// cancels the pending timer synchronously and moves to StateStopped; an
// in-flight scan is not aborted, but its result is discarded and no
// further scan is armed.
type PollingScheduler struct {
	base time.Duration
	scan ScanFunc

	mu        sync.Mutex
	state     State
	errors    int
	gen       uint64 // bumped on every Start; stale scan outcomes are discarded
	timer     *time.Timer
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	inFlight  sync.WaitGroup
	onSettled func(err error) // test hook, called after each scan resolves
}

// New creates a scheduler for one folder. baseInterval must be positive.
func New(baseInterval time.Duration, scan ScanFunc) *PollingScheduler {
	return &PollingScheduler{
		base:  baseInterval,
		scan:  scan,
		state: StateIdle,
	}
}

// Start begins polling with an immediate first scan. Starting an already
// running scheduler is a no-op; starting after Stop re-arms it.
func (p *PollingScheduler) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.state = StateIdle
	p.errors = 0
	p.gen++
	gen := p.gen
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	p.launchScan(gen)
}

// Stop cancels polling. The pending timer is released synchronously; any
// in-flight scan detects cancellation via its context and its outcome is
// ignored, even when the scheduler has been restarted by the time it
// resolves. The scheduler stays stopped until Start is called again.
func (p *PollingScheduler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.state = StateStopped
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until any in-flight scan has resolved. Intended for tests and
// orderly shutdown; Stop itself never blocks.
func (p *PollingScheduler) Wait() {
	p.inFlight.Wait()
}

// State returns the current lifecycle state.
func (p *PollingScheduler) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ConsecutiveErrors returns the current failure streak.
func (p *PollingScheduler) ConsecutiveErrors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errors
}

// launchScan runs one scan cycle in its own goroutine and re-arms the timer
// when it resolves. gen ties the scan to the Start that spawned its timer
// chain; a scan carrying a stale generation never runs and never settles,
// so a Stop/Start cycle cannot leave two chains polling one folder.
func (p *PollingScheduler) launchScan(gen uint64) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.state = StateScanning
	ctx := p.ctx
	p.inFlight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.inFlight.Done()
		err := p.scan(ctx)
		p.settle(gen, err)
	}()
}

// settle records a scan outcome and arms the next timer.
func (p *PollingScheduler) settle(gen uint64, err error) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		// Stopped or restarted mid-scan: discard the outcome.
		p.mu.Unlock()
		return
	}

	var interval time.Duration
	if err != nil {
		p.errors++
		interval = NextInterval(p.base, p.errors)
		if p.errors > BackoffThreshold {
			p.state = StateBackoff
		} else {
			p.state = StateIdle
		}
	} else {
		p.errors = 0
		interval = p.base
		p.state = StateIdle
	}

	p.timer = time.AfterFunc(interval, func() { p.launchScan(gen) })
	hook := p.onSettled
	p.mu.Unlock()

	if hook != nil {
		hook(err)
	}
}
