// Package sync runs the background unread-count poll and delivers its
// results to the Bubble Tea runtime.
package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 30 * time.Second

// fetchTimeout is the maximum time allowed for a single poll.
const fetchTimeout = 15 * time.Second

// CountSource reports the number of unread notifications. On failure it
// returns the last known count along with the error.
type CountSource interface {
	PollUnreadCount(ctx context.Context) (int, error)
}

// CountResultMsg is a tea.Msg sent after every poll.
type CountResultMsg struct {
	Count int
	Err   error
	At    time.Time
}

// PollState represents the current state of the poll loop.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

// Status is a snapshot of the poll loop.
type Status struct {
	State    PollState
	LastPoll time.Time
	Error    error
}

// Poller polls a CountSource once at start and then on every tick.
type Poller struct {
	source   CountSource
	interval time.Duration
	now      func() time.Time

	resultCh  chan CountResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}

	mu      gosync.Mutex
	running bool
	status  Status
}

// New creates a Poller. A non-positive interval means DefaultInterval.
func New(src CountSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:    src,
		interval:  interval,
		now:       time.Now,
		resultCh:  make(chan CountResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Interval returns the poll period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start launches the poll loop and returns a tea.Cmd that waits for the
// first result. Calling Start twice is a no-op returning nil.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the poll loop and waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	<-p.done
}

// Refresh triggers an immediate poll. Triggers arriving while one is
// already pending are merged.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
	return nil
}

// Status returns the current poll status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Do an initial poll immediately
	p.poll()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		case <-p.triggerCh:
			p.poll()
		}
	}
}

// poll runs one count request and publishes its result.
func (p *Poller) poll() {
	p.setStatus(PollRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	// Abort the request when Stop is called mid-flight.
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	n, err := p.source.PollUnreadCount(ctx)
	if err != nil {
		p.setStatus(PollError, err)
	} else {
		p.setStatus(PollIdle, nil)
	}

	p.sendResult(CountResultMsg{Count: n, Err: err, At: p.now()})
}

func (p *Poller) setStatus(state PollState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == PollIdle {
		p.status.LastPoll = p.now()
	}
}

// sendResult sends a result without blocking.
func (p *Poller) sendResult(msg CountResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next poll
// result. Call it after handling each CountResultMsg.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
