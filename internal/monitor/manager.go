package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	"github.com/svarog-dev/warden/internal/relay"
)

// Manager is the cooperative scheduler. Every mutation of tracked servers,
// roster snapshots, the relay queue, and pending action contexts runs on one
// goroutine: the run loop below. External I/O (detail and roster fetches)
// happens in short-lived goroutines whose completions are posted back onto
// the loop, so no two handlers ever run concurrently over shared state.
type Manager struct {
	monitor *Monitor
	relay   *relay.Relay
	detail  DetailFetcher
	roster  RosterFetcher

	tickInterval time.Duration
	rosterDelay  time.Duration

	calls chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	stopOnce sync.Once
}

// NewManager wires the scheduler around a monitor and a relay.
func NewManager(monitor *Monitor, rel *relay.Relay, detail DetailFetcher, roster RosterFetcher, tickInterval, rosterDelay time.Duration) *Manager {
	if tickInterval <= 0 {
		tickInterval = 10 * time.Second
	}
	if rosterDelay <= 0 {
		rosterDelay = 2 * time.Second
	}
	return &Manager{
		monitor:      monitor,
		relay:        rel,
		detail:       detail,
		roster:       roster,
		tickInterval: tickInterval,
		rosterDelay:  rosterDelay,
		calls:        make(chan func(), 256),
		done:         make(chan struct{}),
	}
}

// Start launches the run loop.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	log.Printf("scheduler started, tick every %v", m.tickInterval)
}

// Stop shuts the run loop down and waits for it.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// Do posts fn onto the scheduler goroutine without waiting.
func (m *Manager) Do(fn func()) {
	select {
	case m.calls <- fn:
	case <-m.done:
	}
}

// Call posts fn onto the scheduler goroutine and waits for it to finish.
// HTTP handlers use this to run coordinator requests on the loop.
func (m *Manager) Call(fn func()) {
	doneCh := make(chan struct{})
	m.Do(func() {
		defer close(doneCh)
		fn()
	})
	select {
	case <-doneCh:
	case <-m.done:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case fn := <-m.calls:
			fn()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick polls exactly one server and pumps the relay. Nothing here may
// block: the fetch runs in its own goroutine and posts its completion back.
func (m *Manager) tick(ctx context.Context) {
	if srv := m.monitor.NextServer(); srv != nil {
		tag, externalID := srv.Tag, srv.ExternalID
		go func() {
			detail, err := m.detail.FetchDetail(ctx, externalID)
			m.Do(func() { m.applyDetail(ctx, tag, detail, err) })
		}()
	}
	m.relay.Pump()
}

func (m *Manager) applyDetail(ctx context.Context, tag string, detail *domain.ServerDetail, err error) {
	plan := m.monitor.ApplyDetail(tag, detail, err)
	if plan == nil {
		return
	}

	// Let the external data source settle before reading the roster.
	time.AfterFunc(m.rosterDelay, func() {
		m.Do(func() { m.fetchRoster(ctx, *plan) })
	})
}

func (m *Manager) fetchRoster(ctx context.Context, plan rosterPlan) {
	go func() {
		roster, err := m.roster.FetchRoster(ctx, plan.externalID, plan.includeSpectators)
		m.Do(func() { m.monitor.ApplyRoster(plan.serverTag, roster, err) })
	}()
}
