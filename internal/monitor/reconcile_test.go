package monitor

import (
	"testing"

	"github.com/svarog-dev/warden/internal/domain"
)

func players(names ...string) []domain.PlayerSnapshot {
	out := make([]domain.PlayerSnapshot, len(names))
	for i, n := range names {
		out[i] = domain.PlayerSnapshot{Name: n}
	}
	return out
}

func names(players []domain.PlayerSnapshot) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReconcileDelta(t *testing.T) {
	r := NewReconciler(nil)

	first := r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("A", "B", "C"),
		HasSpectators: true,
	})
	if !equal(names(first.Joined), []string{"A", "B", "C"}) || len(first.Left) != 0 {
		t.Fatalf("first pass delta = %+v", first)
	}

	second := r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("B", "C", "D"),
		HasSpectators: true,
	})
	if !equal(names(second.Joined), []string{"D"}) {
		t.Fatalf("joined = %v, want [D]", names(second.Joined))
	}
	if !equal(names(second.Left), []string{"A"}) {
		t.Fatalf("left = %v, want [A]", names(second.Left))
	}
}

func TestReconcileExcludesBots(t *testing.T) {
	r := NewReconciler(func(name string) bool { return name == "BOT_alpha" })

	r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("alice", "BOT_alpha"),
		HasSpectators: true,
	})
	delta := r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("bob"),
		HasSpectators: true,
	})

	if !equal(names(delta.Joined), []string{"bob"}) {
		t.Fatalf("joined = %v, want [bob]", names(delta.Joined))
	}
	// BOT_alpha left but must not appear in the delta.
	if !equal(names(delta.Left), []string{"alice"}) {
		t.Fatalf("left = %v, want [alice]", names(delta.Left))
	}

	// Bots are still part of the stored snapshot.
	snap := r.Snapshot("srv-1")
	if len(snap) != 1 || snap[0].Name != "bob" {
		t.Fatalf("snapshot = %v", names(snap))
	}
}

func TestReconcileReusesCachedSpectators(t *testing.T) {
	r := NewReconciler(nil)

	r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("alice"),
		Spectators:    players("watcher"),
		HasSpectators: true,
	})

	// Rate-limited pass without spectators: the cached watcher must not
	// register as a leave.
	delta := r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("alice"),
		HasSpectators: false,
	})
	if len(delta.Joined) != 0 || len(delta.Left) != 0 {
		t.Fatalf("spectator-less pass produced delta %+v", delta)
	}

	// Once spectators are fetched again, a real leave shows up.
	delta = r.Reconcile("srv-1", domain.Roster{
		Soldiers:      players("alice"),
		HasSpectators: true,
	})
	if !equal(names(delta.Left), []string{"watcher"}) {
		t.Fatalf("left = %v, want [watcher]", names(delta.Left))
	}
}

func TestReconcilePersonaKey(t *testing.T) {
	r := NewReconciler(nil)

	r.Reconcile("srv-1", domain.Roster{
		Soldiers:      []domain.PlayerSnapshot{{Name: "OldName", PersonaID: "p-1"}},
		HasSpectators: true,
	})
	// Same persona under a new display name is not a join/leave.
	delta := r.Reconcile("srv-1", domain.Roster{
		Soldiers:      []domain.PlayerSnapshot{{Name: "NewName", PersonaID: "p-1"}},
		HasSpectators: true,
	})
	if len(delta.Joined) != 0 || len(delta.Left) != 0 {
		t.Fatalf("rename produced delta %+v", delta)
	}
}

func TestForget(t *testing.T) {
	r := NewReconciler(nil)
	r.Reconcile("srv-1", domain.Roster{Soldiers: players("alice"), HasSpectators: true})
	r.Forget("srv-1")
	if r.Snapshot("srv-1") != nil {
		t.Fatalf("snapshot survived Forget")
	}

	delta := r.Reconcile("srv-1", domain.Roster{Soldiers: players("alice"), HasSpectators: true})
	if !equal(names(delta.Joined), []string{"alice"}) {
		t.Fatalf("post-Forget delta = %+v", delta)
	}
}
