package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	"github.com/svarog-dev/warden/internal/relay"
)

type scriptedFetcher struct {
	detail *domain.ServerDetail
	roster *domain.Roster
}

func (f *scriptedFetcher) FetchDetail(context.Context, string) (*domain.ServerDetail, error) {
	return f.detail, nil
}

func (f *scriptedFetcher) FetchRoster(context.Context, string, bool) (*domain.Roster, error) {
	return f.roster, nil
}

type nopSender struct{}

func (nopSender) Send(domain.Actor, string) error { return nil }

// waitUntil polls a condition through the scheduler until it holds or the
// deadline passes.
func waitUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		m.Call(func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func TestManagerDrivesPollCycle(t *testing.T) {
	fetcher := &scriptedFetcher{
		detail: &domain.ServerDetail{
			MapName:          "Harbor",
			MapRotationIndex: 1,
			Slots:            domain.SlotCounts{Soldier: 3},
		},
		roster: &domain.Roster{Soldiers: players("alice"), HasSpectators: true},
	}

	mon := NewMonitor(NewReconciler(nil), time.Hour, nil, nil)
	mon.AddServer(testConfig("a"))
	rel := relay.New(relay.Config{}, nopSender{}, relay.NewTableClassifier(), nil, nil)

	m := NewManager(mon, rel, fetcher, fetcher, 20*time.Millisecond, 1*time.Millisecond)
	m.Start(context.Background())
	defer m.Stop()

	// One full tick brings detail state and, after the settle delay, the
	// roster snapshot onto the tracked server.
	waitUntil(t, m, func() bool {
		srv := mon.Server("a")
		return srv != nil && srv.MapName == "Harbor"
	})
	waitUntil(t, m, func() bool {
		snap := mon.Roster("a")
		return len(snap) == 1 && snap[0].Name == "alice"
	})
}

func TestManagerCallRunsOnLoop(t *testing.T) {
	mon := NewMonitor(NewReconciler(nil), time.Hour, nil, nil)
	rel := relay.New(relay.Config{}, nopSender{}, relay.NewTableClassifier(), nil, nil)
	m := NewManager(mon, rel, &scriptedFetcher{}, &scriptedFetcher{}, time.Hour, time.Second)
	m.Start(context.Background())
	defer m.Stop()

	var ran bool
	m.Call(func() { ran = true })
	if !ran {
		t.Fatalf("Call returned before fn ran")
	}
}

func TestManagerStopIsIdempotent(t *testing.T) {
	mon := NewMonitor(NewReconciler(nil), time.Hour, nil, nil)
	rel := relay.New(relay.Config{}, nopSender{}, relay.NewTableClassifier(), nil, nil)
	m := NewManager(mon, rel, &scriptedFetcher{}, &scriptedFetcher{}, time.Hour, time.Second)
	m.Start(context.Background())

	m.Stop()
	m.Stop()

	// Posting after shutdown must not block.
	done := make(chan struct{})
	go func() {
		m.Do(func() {})
		m.Call(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Do/Call blocked after Stop")
	}
}

func TestManagerPumpsRelayOnTick(t *testing.T) {
	sent := make(chan string, 1)
	sender := senderFunc(func(actor domain.Actor, text string) error {
		select {
		case sent <- text:
		default:
		}
		return nil
	})

	mon := NewMonitor(NewReconciler(nil), time.Hour, nil, nil)
	rel := relay.New(relay.Config{}, sender, relay.NewTableClassifier(), nil, nil)
	m := NewManager(mon, rel, &scriptedFetcher{}, &scriptedFetcher{}, 20*time.Millisecond, time.Second)
	m.Start(context.Background())
	defer m.Stop()

	m.Call(func() {
		rel.Enqueue(relay.NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "a"))
	})

	select {
	case text := <-sent:
		if text != "/ban alice x" {
			t.Fatalf("sent %q", text)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("queued task never dispatched by the tick loop")
	}
}

type senderFunc func(domain.Actor, string) error

func (f senderFunc) Send(actor domain.Actor, text string) error { return f(actor, text) }
