package monitor

import (
	"github.com/svarog-dev/warden/internal/domain"
)

// Reconciler computes join/leave deltas between roster polls. It owns the
// "previous roster" snapshot per server; a failed poll never reaches it, so
// the stored snapshot is always the result of the most recent successful
// fetch.
type Reconciler struct {
	isBot func(name string) bool

	prev     map[string][]domain.PlayerSnapshot
	prevSpec map[string][]domain.PlayerSnapshot
}

// NewReconciler creates a reconciler. isBot is the injected bot predicate;
// nil means nobody is a bot.
func NewReconciler(isBot func(name string) bool) *Reconciler {
	if isBot == nil {
		isBot = func(string) bool { return false }
	}
	return &Reconciler{
		isBot:    isBot,
		prev:     make(map[string][]domain.PlayerSnapshot),
		prevSpec: make(map[string][]domain.PlayerSnapshot),
	}
}

// Reconcile replaces the stored snapshot for serverTag with the new roster
// and returns the join/leave delta. Bots are tagged and kept in the snapshot
// but excluded from the delta so they never trigger moderation. When the
// roster omits spectators (rate-limited sub-fetch), the cached spectator
// list is reused instead of being treated as a mass leave.
func (r *Reconciler) Reconcile(serverTag string, roster domain.Roster) domain.RosterDelta {
	spectators := roster.Spectators
	if roster.HasSpectators {
		r.prevSpec[serverTag] = tagBots(r.isBot, roster.Spectators)
		spectators = r.prevSpec[serverTag]
	} else {
		spectators = r.prevSpec[serverTag]
	}

	current := make([]domain.PlayerSnapshot, 0, len(roster.Soldiers)+len(roster.Queue)+len(spectators))
	current = append(current, tagBots(r.isBot, roster.Soldiers)...)
	current = append(current, tagBots(r.isBot, roster.Queue)...)
	current = append(current, spectators...)

	previous := r.prev[serverTag]
	r.prev[serverTag] = current

	return diff(previous, current)
}

// Snapshot returns the stored roster for a server, or nil if none.
func (r *Reconciler) Snapshot(serverTag string) []domain.PlayerSnapshot {
	return r.prev[serverTag]
}

// Forget drops all cached state for a server that was closed or untracked.
func (r *Reconciler) Forget(serverTag string) {
	delete(r.prev, serverTag)
	delete(r.prevSpec, serverTag)
}

func tagBots(isBot func(string) bool, players []domain.PlayerSnapshot) []domain.PlayerSnapshot {
	out := make([]domain.PlayerSnapshot, len(players))
	for i, p := range players {
		p.IsBot = p.IsBot || isBot(p.Name)
		out[i] = p
	}
	return out
}

// diff computes the set difference on the stable identity key. Bots are
// excluded from both sides of the delta.
func diff(previous, current []domain.PlayerSnapshot) domain.RosterDelta {
	prevKeys := make(map[string]bool, len(previous))
	for _, p := range previous {
		prevKeys[p.Key()] = true
	}
	curKeys := make(map[string]bool, len(current))
	for _, p := range current {
		curKeys[p.Key()] = true
	}

	var delta domain.RosterDelta
	for _, p := range current {
		if p.IsBot || prevKeys[p.Key()] {
			continue
		}
		delta.Joined = append(delta.Joined, p)
	}
	for _, p := range previous {
		if p.IsBot || curKeys[p.Key()] {
			continue
		}
		delta.Left = append(delta.Left, p)
	}
	return delta
}
