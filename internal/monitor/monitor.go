// Package monitor owns server tracking: the round-robin detail poller, the
// roster reconciler, and the single-threaded manager loop that drives both
// plus the command relay.
package monitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	"golang.org/x/time/rate"
)

// ErrServerNotFound is returned by detail fetches when the status API no
// longer knows the server; the monitor treats it as a close transition.
var ErrServerNotFound = errors.New("server not found")

// DetailFetcher fetches current detail for one server by external id
type DetailFetcher interface {
	FetchDetail(ctx context.Context, externalID string) (*domain.ServerDetail, error)
}

// RosterFetcher fetches the current roster for one server by external id
type RosterFetcher interface {
	FetchRoster(ctx context.Context, externalID string, includeSpectators bool) (*domain.Roster, error)
}

// Monitor tracks the configured servers and detects state transitions from
// periodic polls. All methods must run on the scheduler goroutine.
type Monitor struct {
	reconciler *Reconciler
	events     func(domain.Event)
	onClosed   func(serverTag string)
	specLimit  *rate.Limiter

	servers []*domain.TrackedServer
	index   map[string]*domain.TrackedServer
	rr      int
}

// NewMonitor creates a monitor. events receives every transition event;
// onClosed (optional) is told when a tracked server disappears so live
// relay contexts can self-cancel.
func NewMonitor(reconciler *Reconciler, spectatorInterval time.Duration, events func(domain.Event), onClosed func(string)) *Monitor {
	if spectatorInterval <= 0 {
		spectatorInterval = 30 * time.Second
	}
	return &Monitor{
		reconciler: reconciler,
		events:     events,
		onClosed:   onClosed,
		specLimit:  rate.NewLimiter(rate.Every(spectatorInterval), 1),
		index:      make(map[string]*domain.TrackedServer),
	}
}

// AddServer begins tracking a server. Adding an existing tag is a no-op.
func (m *Monitor) AddServer(cfg domain.ServerConfig) bool {
	if _, ok := m.index[cfg.Tag]; ok {
		return false
	}
	srv := &domain.TrackedServer{
		Tag:         cfg.Tag,
		ExternalID:  cfg.ExternalID,
		DisplayName: cfg.DisplayName,
		GroupID:     cfg.GroupID,
		GameID:      cfg.GameID,
		IsTV:        cfg.IsTV,
		Actor:       cfg.BotActor(),
	}
	m.servers = append(m.servers, srv)
	m.index[cfg.Tag] = srv
	log.Printf("monitor: tracking server %s (%s)", cfg.Tag, cfg.ExternalID)
	return true
}

// RemoveServer stops tracking a server. Removing an unknown tag is a no-op.
func (m *Monitor) RemoveServer(tag string) bool {
	if _, ok := m.index[tag]; !ok {
		return false
	}
	delete(m.index, tag)
	for i, srv := range m.servers {
		if srv.Tag == tag {
			m.servers = append(m.servers[:i], m.servers[i+1:]...)
			if m.rr > i {
				m.rr--
			}
			break
		}
	}
	m.reconciler.Forget(tag)
	if m.onClosed != nil {
		m.onClosed(tag)
	}
	return true
}

// Server returns the tracked server for a tag, or nil.
func (m *Monitor) Server(tag string) *domain.TrackedServer {
	return m.index[tag]
}

// ServerByGroup returns the tracked server bound to a chat group, or nil.
func (m *Monitor) ServerByGroup(groupID int64) *domain.TrackedServer {
	for _, srv := range m.servers {
		if srv.GroupID == groupID {
			return srv
		}
	}
	return nil
}

// Servers returns a copy of the tracked server list.
func (m *Monitor) Servers() []domain.TrackedServer {
	out := make([]domain.TrackedServer, len(m.servers))
	for i, srv := range m.servers {
		out[i] = *srv
	}
	return out
}

// Roster returns the stored roster snapshot for a tag.
func (m *Monitor) Roster(tag string) []domain.PlayerSnapshot {
	return m.reconciler.Snapshot(tag)
}

// NextServer picks the next server in round-robin order and advances the
// cursor. The cursor always advances, so one failing server cannot stall
// the rest of the rotation.
func (m *Monitor) NextServer() *domain.TrackedServer {
	if len(m.servers) == 0 {
		return nil
	}
	if m.rr >= len(m.servers) {
		m.rr = 0
	}
	srv := m.servers[m.rr]
	m.rr = (m.rr + 1) % len(m.servers)
	return srv
}

// rosterPlan describes the follow-up roster check scheduled after a detail
// poll settles.
type rosterPlan struct {
	serverTag         string
	externalID        string
	includeSpectators bool
}

// ApplyDetail folds one detail poll result into tracked state and returns
// the roster follow-up to schedule, if any. A fetch error other than
// not-found leaves the server untouched for this tick.
func (m *Monitor) ApplyDetail(tag string, detail *domain.ServerDetail, err error) *rosterPlan {
	srv, ok := m.index[tag]
	if !ok {
		// Removed while the fetch was in flight.
		return nil
	}

	if errors.Is(err, ErrServerNotFound) {
		log.Printf("monitor: server %s is gone, closing", tag)
		closed := *srv
		m.RemoveServer(tag)
		m.emit(domain.Event{
			Type:      domain.EventServerClosed,
			ServerTag: tag,
			Timestamp: time.Now().UTC(),
			Data:      domain.ServerClosedEvent{Server: closed},
		})
		return nil
	}
	if err != nil {
		log.Printf("monitor: polling %s: %v", tag, err)
		return nil
	}

	if detail.MapRotationIndex != srv.MapRotationIndex {
		m.emit(domain.Event{
			Type:      domain.EventMapRotated,
			ServerTag: tag,
			Timestamp: time.Now().UTC(),
			Data: domain.MapRotatedEvent{
				PreviousMap: srv.MapName,
				CurrentMap:  detail.MapName,
				NewIndex:    detail.MapRotationIndex,
			},
		})
	}

	srv.MapName = detail.MapName
	srv.MapRotationIndex = detail.MapRotationIndex
	srv.SoldierCount = detail.Slots.Soldier
	srv.SpectatorCount = detail.Slots.Spectator
	srv.QueueCount = detail.Slots.Queue
	srv.LastSeenAt = time.Now().UTC()

	// The spectator sub-fetch is heavier; only include it when the detail
	// poll suggests spectators are present and the limiter allows.
	include := detail.Slots.Spectator > 0 && m.specLimit.Allow()
	return &rosterPlan{serverTag: tag, externalID: srv.ExternalID, includeSpectators: include}
}

// ApplyRoster folds one roster fetch result through the reconciler and
// emits join/leave events. A fetch error leaves the stored snapshot alone.
func (m *Monitor) ApplyRoster(tag string, roster *domain.Roster, err error) {
	if _, ok := m.index[tag]; !ok {
		return
	}
	if err != nil {
		log.Printf("monitor: roster fetch for %s: %v", tag, err)
		return
	}

	delta := m.reconciler.Reconcile(tag, *roster)
	now := time.Now().UTC()
	for _, p := range delta.Joined {
		m.emit(domain.Event{
			Type:      domain.EventPlayerJoined,
			ServerTag: tag,
			Timestamp: now,
			Data:      domain.PlayerJoinedEvent{Player: p},
		})
	}
	for _, p := range delta.Left {
		m.emit(domain.Event{
			Type:      domain.EventPlayerLeft,
			ServerTag: tag,
			Timestamp: now,
			Data:      domain.PlayerLeftEvent{Player: p},
		})
	}
}

func (m *Monitor) emit(evt domain.Event) {
	if m.events != nil {
		m.events(evt)
	}
}
