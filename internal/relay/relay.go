// Package relay implements the single-flight command relay that drives
// privileged server actions through two external chat accounts. The only
// transport is free-form chat text in both directions, so the relay
// serializes every action, classifies replies by substring, and bounds the
// wait on actors that never answer.
package relay

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/svarog-dev/warden/internal/domain"
)

// State is the relay's dispatch state
type State int

const (
	// StateIdle means no task is in flight; Pump may dispatch the queue head
	StateIdle State = iota
	// StateAwaitingReply means the head task's command text has been sent
	// and the relay is waiting for a recognizable reply from its actor
	StateAwaitingReply
)

// Task is a single administrative command awaiting dispatch and
// classification. Once enqueued it is owned exclusively by the relay until a
// terminal classification pops it.
type Task struct {
	ID        string
	Kind      domain.TaskKind
	Command   string
	Actor     domain.Actor
	ServerTag string
	Attempts  int
}

// NewTask builds a task with a fresh id.
func NewTask(kind domain.TaskKind, command string, actor domain.Actor, serverTag string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Command:   command,
		Actor:     actor,
		ServerTag: serverTag,
	}
}

// Result is the terminal outcome of a task, delivered to the owner exactly
// once per task.
type Result struct {
	Task    *Task
	Success bool
	Reason  string
}

// Sender delivers command text to an external actor. Implementations must
// not block; the bus-backed sender just publishes.
type Sender interface {
	Send(actor domain.Actor, text string) error
}

// Config holds the relay tuning knobs
type Config struct {
	// ForceCancelAfter bounds the wait on a silent actor; on expiry the
	// relay resets to Idle with the head task still queued.
	ForceCancelAfter time.Duration
	// NotFoundRetries is the consecutive-failure ceiling for transient
	// moderation replies (player not yet visible to the external index).
	NotFoundRetries int
	// StartServerRetries is the consecutive-failure ceiling for
	// start-server tasks.
	StartServerRetries int
	// MaxAttempts caps total dispatches of one task, covering actors that
	// never produce a classifiable reply.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.ForceCancelAfter == 0 {
		c.ForceCancelAfter = 2 * time.Minute
	}
	if c.NotFoundRetries == 0 {
		c.NotFoundRetries = 2
	}
	if c.StartServerRetries == 0 {
		c.StartServerRetries = 5
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Relay is the single-flight queue plus reply-classification state machine.
// All methods must be called from the scheduler goroutine; the relay holds
// no locks of its own.
type Relay struct {
	cfg        Config
	sender     Sender
	classifier Classifier
	now        func() time.Time
	onResult   func(Result)

	state        State
	queue        []*Task
	dispatchedAt time.Time
	failures     map[domain.TaskFamily]int
}

// New creates a relay. onResult is invoked synchronously for every terminal
// classification, including swallowed chained tasks.
func New(cfg Config, sender Sender, classifier Classifier, now func() time.Time, onResult func(Result)) *Relay {
	if now == nil {
		now = time.Now
	}
	return &Relay{
		cfg:        cfg.withDefaults(),
		sender:     sender,
		classifier: classifier,
		now:        now,
		onResult:   onResult,
		failures:   make(map[domain.TaskFamily]int),
	}
}

// SetResultHandler replaces the terminal-outcome callback. Used to break
// the construction cycle with the coordinator; must be called before the
// first Pump.
func (r *Relay) SetResultHandler(fn func(Result)) {
	r.onResult = fn
}

// State returns the current dispatch state.
func (r *Relay) State() State { return r.state }

// QueueLen returns the number of queued tasks, including any in flight.
func (r *Relay) QueueLen() int { return len(r.queue) }

// Head returns the queue head without removing it, or nil.
func (r *Relay) Head() *Task {
	if len(r.queue) == 0 {
		return nil
	}
	return r.queue[0]
}

// Enqueue appends a task to the FIFO queue. Dispatch happens on the next
// Pump, never here, so callers cannot observe partial state.
func (r *Relay) Enqueue(t *Task) {
	r.queue = append(r.queue, t)
}

// Pump runs once per monitor tick. It force-resets a wait that has exceeded
// the cancel bound, and dispatches the queue head when idle.
func (r *Relay) Pump() {
	if r.state == StateAwaitingReply {
		if r.now().Sub(r.dispatchedAt) >= r.cfg.ForceCancelAfter {
			head := r.Head()
			log.Printf("relay: no reply from %s after %v, force-resetting (task %s)", head.Actor, r.cfg.ForceCancelAfter, head.ID)
			r.state = StateIdle
		}
		return
	}

	head := r.Head()
	if head == nil {
		return
	}

	if head.Attempts >= r.maxAttempts(head.Kind) {
		log.Printf("relay: task %s (%s) exceeded %d attempts, abandoning", head.ID, head.Kind, head.Attempts)
		r.failures[head.Kind.Family()] = 0
		r.finish(Result{Task: head, Success: false, Reason: "对方长时间无响应"})
		return
	}

	if err := r.sender.Send(head.Actor, head.Command); err != nil {
		// Leave the task at the head; the next tick retries the send.
		// Failed sends never reached the actor, so they do not count as
		// attempts.
		log.Printf("relay: sending to %s: %v", head.Actor, err)
		return
	}
	head.Attempts++
	r.state = StateAwaitingReply
	r.dispatchedAt = r.now()
}

// HandleMessage classifies inbound chat text. Messages are only meaningful
// while a task is awaiting a reply from the same actor; everything else is
// ignored, which makes repeated terminal replies harmless.
func (r *Relay) HandleMessage(actor domain.Actor, text string) {
	if r.state != StateAwaitingReply {
		return
	}
	head := r.Head()
	if head == nil || head.Actor != actor {
		return
	}

	c, ok := r.classifier.Classify(head.Kind, text)
	if !ok {
		// Unrecognized phrasing: keep waiting for a classifiable reply.
		return
	}

	family := head.Kind.Family()
	switch c.Outcome {
	case OutcomeSuccess:
		r.failures[family] = 0
		r.finish(Result{Task: head, Success: true, Reason: c.Reason})

	case OutcomeTransient:
		r.failures[family]++
		if r.failures[family] < r.transientThreshold(head.Kind) {
			log.Printf("relay: transient failure %d for task %s (%q), retrying", r.failures[family], head.ID, c.Reason)
			r.state = StateIdle
			return
		}
		r.failures[family] = 0
		r.finish(Result{Task: head, Success: false, Reason: c.Reason})

	case OutcomePermanent:
		r.failures[family] = 0
		r.finish(Result{Task: head, Success: false, Reason: c.Reason})
	}
}

// finish pops the head and reports its terminal result.
func (r *Relay) finish(res Result) {
	r.queue = r.queue[1:]
	r.state = StateIdle
	if r.onResult != nil {
		r.onResult(res)
	}
}

func (r *Relay) maxAttempts(kind domain.TaskKind) int {
	if kind == domain.TaskStartServer {
		return r.cfg.StartServerRetries
	}
	return r.cfg.MaxAttempts
}

func (r *Relay) transientThreshold(kind domain.TaskKind) int {
	if kind == domain.TaskStartServer {
		return r.cfg.StartServerRetries
	}
	return r.cfg.NotFoundRetries
}
