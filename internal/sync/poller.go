package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

// SyncState represents the current state of the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the last known outcome of polling.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Synced   int
	Error    error
}

// Result is delivered on the results channel after each attempt.
type Result struct {
	Synced int
	Error  error

	// AuthExpired is set when the attempt failed for lack of a session.
	AuthExpired bool
}

// syncTimeout is the maximum time allowed for a single polled sync.
const syncTimeout = 30 * time.Second

// defaultInterval applies when a non-positive interval is given.
const defaultInterval = 2 * time.Minute

// Syncer is what the poller drives.
type Syncer interface {
	Sync(ctx context.Context) (*model.SyncResult, error)
}

// Poller runs Sync on an interval and on demand. Every attempt goes
// through the coordinator, so polled and manual syncs never interleave.
type Poller struct {
	syncer    Syncer
	interval  time.Duration
	log       zerolog.Logger
	status    SyncStatus
	resultCh  chan Result
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a poller for syncer.
func NewPoller(syncer Syncer, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		syncer:    syncer,
		interval:  interval,
		log:       logger.With().Str("component", "poller").Logger(),
		resultCh:  make(chan Result, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine. An immediate sync runs first.
// Calling Start on a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.loop(p.stopCh, p.doneCh)
}

// Stop halts polling and waits for an in-flight attempt to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	done := p.doneCh
	p.running = false
	p.mu.Unlock()

	<-done
}

// Refresh requests an immediate sync. Requests made while one is already
// pending are merged.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Results returns the channel on which attempt outcomes are delivered.
// Results are dropped when nobody reads them.
func (p *Poller) Results() <-chan Result {
	return p.resultCh
}

// Status returns the last known sync status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// loop runs until stop is closed.
func (p *Poller) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.attempt()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.attempt()
		case <-p.triggerCh:
			p.attempt()
		}
	}
}

// attempt performs a single sync and publishes the outcome.
func (p *Poller) attempt() {
	p.setState(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	result, err := p.syncer.Sync(ctx)

	// A manual sync is already doing the work.
	if errors.Is(err, ErrSyncInProgress) {
		p.setState(SyncIdle, nil)
		return
	}

	if err != nil {
		p.setState(SyncError, err)
		p.log.Warn().Err(err).Str("category", string(mailerr.Kind(err))).Msg("polled sync failed")
		p.sendResult(Result{Error: err, AuthExpired: mailerr.IsUnauthenticated(err)})
		return
	}

	p.mu.Lock()
	p.status = SyncStatus{State: SyncIdle, LastSync: time.Now(), Synced: result.Synced}
	p.mu.Unlock()

	p.sendResult(Result{Synced: result.Synced})
}

// setState updates the state and error, keeping the last success.
func (p *Poller) setState(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = state
	p.status.Error = err
}

// sendResult sends a Result without blocking.
func (p *Poller) sendResult(r Result) {
	select {
	case p.resultCh <- r:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}
