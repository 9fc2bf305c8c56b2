package relay

import (
	"testing"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
)

// fakeSender records every dispatched command and can simulate a full
// outbound buffer.
type fakeSender struct {
	sent []string
	err  error
}

func (s *fakeSender) Send(actor domain.Actor, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, string(actor)+":"+text)
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRelay(t *testing.T, cfg Config) (*Relay, *fakeSender, *fakeClock, *[]Result) {
	t.Helper()
	sender := &fakeSender{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	var results []Result
	r := New(cfg, sender, NewTableClassifier(), clock.now, func(res Result) {
		results = append(results, res)
	})
	return r, sender, clock, &results
}

func TestSingleFlight(t *testing.T) {
	r, sender, _, _ := newTestRelay(t, Config{})

	r.Enqueue(NewTask(domain.TaskBan, "/ban alice cheating", domain.ActorRunRun, "srv-1"))
	r.Enqueue(NewTask(domain.TaskBan, "/ban bob cheating", domain.ActorRunRun, "srv-1"))

	if got := len(sender.sent); got != 0 {
		t.Fatalf("Enqueue dispatched %d commands, want 0", got)
	}

	r.Pump()
	r.Pump()
	r.Pump()

	if got := len(sender.sent); got != 1 {
		t.Fatalf("dispatched %d commands while awaiting reply, want 1", got)
	}
	if r.State() != StateAwaitingReply {
		t.Fatalf("state = %v, want StateAwaitingReply", r.State())
	}

	// Second task only goes out after the first resolves.
	r.HandleMessage(domain.ActorRunRun, "封禁玩家成功")
	r.Pump()
	if got := len(sender.sent); got != 2 {
		t.Fatalf("dispatched %d commands after first resolved, want 2", got)
	}
	if sender.sent[1] != "RunRun:/ban bob cheating" {
		t.Fatalf("second dispatch = %q", sender.sent[1])
	}
}

func TestBanSuccess(t *testing.T) {
	r, sender, _, results := newTestRelay(t, Config{})

	r.Enqueue(NewTask(domain.TaskBan, "/ban alice cheating", domain.ActorRunRun, "srv-1"))
	r.Pump()

	if len(sender.sent) != 1 || sender.sent[0] != "RunRun:/ban alice cheating" {
		t.Fatalf("sent = %v", sender.sent)
	}

	// Noise from the other actor and unmatched phrasing are ignored.
	r.HandleMessage(domain.ActorTVBot, "封禁玩家成功")
	r.HandleMessage(domain.ActorRunRun, "今天天气不错")
	if len(*results) != 0 {
		t.Fatalf("premature results: %v", *results)
	}

	r.HandleMessage(domain.ActorRunRun, "封禁玩家成功")
	if len(*results) != 1 {
		t.Fatalf("got %d results, want 1", len(*results))
	}
	res := (*results)[0]
	if !res.Success || res.Reason != "封禁玩家成功" {
		t.Fatalf("result = %+v", res)
	}
	if r.QueueLen() != 0 || r.State() != StateIdle {
		t.Fatalf("queue=%d state=%v after terminal reply", r.QueueLen(), r.State())
	}
}

func TestDuplicateTerminalReplyIgnored(t *testing.T) {
	r, _, _, results := newTestRelay(t, Config{})

	r.Enqueue(NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1"))
	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "封禁玩家成功")
	r.HandleMessage(domain.ActorRunRun, "封禁玩家成功")

	if len(*results) != 1 {
		t.Fatalf("got %d results after duplicate reply, want 1", len(*results))
	}
}

func TestForceCancelKeepsHead(t *testing.T) {
	r, sender, clock, results := newTestRelay(t, Config{ForceCancelAfter: 2 * time.Minute})

	task := NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1")
	r.Enqueue(task)
	r.Pump()

	clock.advance(2*time.Minute - time.Second)
	r.Pump()
	if r.State() != StateAwaitingReply {
		t.Fatalf("reset before the cancel bound elapsed")
	}

	clock.advance(time.Second)
	r.Pump()
	if r.State() == StateAwaitingReply {
		t.Fatalf("still awaiting after the cancel bound")
	}
	if head := r.Head(); head == nil || head.ID != task.ID {
		t.Fatalf("head after force-reset = %+v, want original task", head)
	}
	if len(*results) != 0 {
		t.Fatalf("force-reset produced a terminal result: %v", *results)
	}

	// Next pump redispatches the same task.
	r.Pump()
	if got := len(sender.sent); got != 2 {
		t.Fatalf("dispatched %d commands, want 2", got)
	}
	if task.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", task.Attempts)
	}
}

func TestAttemptCeilingAbandons(t *testing.T) {
	r, _, clock, results := newTestRelay(t, Config{ForceCancelAfter: time.Minute, MaxAttempts: 5})

	r.Enqueue(NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1"))
	for i := 0; i < 5; i++ {
		r.Pump() // dispatch
		clock.advance(time.Minute)
		r.Pump() // force-reset
	}
	r.Pump() // sixth attempt is refused

	if len(*results) != 1 {
		t.Fatalf("got %d results, want 1 abandonment", len(*results))
	}
	res := (*results)[0]
	if res.Success || res.Reason != "对方长时间无响应" {
		t.Fatalf("abandonment result = %+v", res)
	}
	if r.QueueLen() != 0 {
		t.Fatalf("abandoned task still queued")
	}
}

func TestTransientRetriesThenFails(t *testing.T) {
	r, sender, _, results := newTestRelay(t, Config{NotFoundRetries: 2})

	r.Enqueue(NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1"))

	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "未在任何服务器中找到该玩家")
	if len(*results) != 0 {
		t.Fatalf("finalized after first transient failure")
	}
	if r.QueueLen() != 1 {
		t.Fatalf("transient failure dropped the task")
	}

	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "未在任何服务器中找到该玩家")
	if len(*results) != 1 {
		t.Fatalf("got %d results, want failure at threshold", len(*results))
	}
	if (*results)[0].Success {
		t.Fatalf("transient threshold reported success")
	}
	if got := len(sender.sent); got != 2 {
		t.Fatalf("dispatched %d commands, want 2", got)
	}
}

func TestTransientCounterResetOnSuccess(t *testing.T) {
	r, _, _, results := newTestRelay(t, Config{NotFoundRetries: 2})

	r.Enqueue(NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1"))
	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "未在任何服务器中找到该玩家")
	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "封禁玩家成功")

	// The counter was reset, so a fresh task gets the full allowance again.
	r.Enqueue(NewTask(domain.TaskBan, "/ban bob x", domain.ActorRunRun, "srv-1"))
	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "未在任何服务器中找到该玩家")

	if len(*results) != 1 {
		t.Fatalf("got %d results, want only the earlier success", len(*results))
	}
	if !(*results)[0].Success {
		t.Fatalf("first result = %+v", (*results)[0])
	}
}

func TestStartServerExplicitErrorThreshold(t *testing.T) {
	r, _, _, results := newTestRelay(t, Config{StartServerRetries: 5})

	r.Enqueue(NewTask(domain.TaskStartServer, "/createServer ext-9", domain.ActorRunRun, "srv-9"))

	for i := 0; i < 5; i++ {
		r.Pump()
		r.HandleMessage(domain.ActorRunRun, "在处理过程中出现显式错误")
	}

	if len(*results) != 1 {
		t.Fatalf("got %d results after 5 explicit errors, want 1 failure", len(*results))
	}
	if (*results)[0].Success {
		t.Fatalf("start-server reported success after 5 explicit errors")
	}

	// A sixth reply arrives with nothing in flight and must be a no-op.
	r.HandleMessage(domain.ActorRunRun, "在处理过程中出现显式错误")
	if len(*results) != 1 || r.QueueLen() != 0 {
		t.Fatalf("late reply changed state: results=%d queue=%d", len(*results), r.QueueLen())
	}
}

func TestSendErrorLeavesHead(t *testing.T) {
	r, sender, _, _ := newTestRelay(t, Config{})
	sender.err = errTest

	task := NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1")
	r.Enqueue(task)
	r.Pump()

	if r.State() != StateIdle {
		t.Fatalf("state = %v after send error, want StateIdle", r.State())
	}
	if r.Head() == nil {
		t.Fatalf("send error dropped the task")
	}

	sender.err = nil
	r.Pump()
	if len(sender.sent) != 1 {
		t.Fatalf("retry after send error did not dispatch")
	}
}

func TestSendErrorsDoNotConsumeAttempts(t *testing.T) {
	r, sender, _, results := newTestRelay(t, Config{MaxAttempts: 2})
	sender.err = errTest

	task := NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1")
	r.Enqueue(task)
	for i := 0; i < 10; i++ {
		r.Pump()
	}

	if len(*results) != 0 {
		t.Fatalf("send failures abandoned the task: %v", *results)
	}
	if task.Attempts != 0 {
		t.Fatalf("attempts = %d after failed sends, want 0", task.Attempts)
	}

	sender.err = nil
	r.Pump()
	if task.Attempts != 1 || r.State() != StateAwaitingReply {
		t.Fatalf("attempts=%d state=%v after first real dispatch", task.Attempts, r.State())
	}
}

func TestAbandonResetsFailureCounter(t *testing.T) {
	r, _, clock, results := newTestRelay(t, Config{
		ForceCancelAfter: time.Minute,
		NotFoundRetries:  2,
		MaxAttempts:      2,
	})

	// One transient failure leaves the counter at 1, then the task is
	// abandoned at the attempt ceiling.
	r.Enqueue(NewTask(domain.TaskBan, "/ban alice x", domain.ActorRunRun, "srv-1"))
	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "未在任何服务器中找到该玩家")
	r.Pump()
	clock.advance(time.Minute)
	r.Pump()
	r.Pump()
	if len(*results) != 1 || (*results)[0].Success {
		t.Fatalf("results = %v, want one abandonment", *results)
	}

	// The next task gets the full transient allowance again.
	r.Enqueue(NewTask(domain.TaskBan, "/ban bob x", domain.ActorRunRun, "srv-1"))
	r.Pump()
	r.HandleMessage(domain.ActorRunRun, "未在任何服务器中找到该玩家")
	if len(*results) != 1 {
		t.Fatalf("stale failure counter finalized the next task: %v", *results)
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "buffer full" }

func TestClassifierTables(t *testing.T) {
	c := NewTableClassifier()

	cases := []struct {
		kind    domain.TaskKind
		text    string
		outcome Outcome
		matched bool
	}{
		{domain.TaskBan, "操作完成：封禁玩家成功！", OutcomeSuccess, true},
		{domain.TaskBan, "屏蔽玩家成功", OutcomeSuccess, true},
		{domain.TaskUnban, "解封玩家成功", OutcomeSuccess, true},
		{domain.TaskBan, "未在任何服务器中找到该玩家", OutcomeTransient, true},
		{domain.TaskBan, "没有操作权限", OutcomePermanent, true},
		{domain.TaskBan, "封禁玩家失败", OutcomePermanent, true},
		{domain.TaskBan, "random chatter", 0, false},
		{domain.TaskStartServer, "服务器创建成功", OutcomeSuccess, true},
		{domain.TaskStartServer, "在处理过程中出现显式错误", OutcomeTransient, true},
		{domain.TaskStartServer, "封禁玩家成功", 0, false},
	}
	for _, tc := range cases {
		got, ok := c.Classify(tc.kind, tc.text)
		if ok != tc.matched {
			t.Fatalf("Classify(%s, %q) matched=%v, want %v", tc.kind, tc.text, ok, tc.matched)
		}
		if ok && got.Outcome != tc.outcome {
			t.Fatalf("Classify(%s, %q) = %v, want %v", tc.kind, tc.text, got.Outcome, tc.outcome)
		}
	}
}
