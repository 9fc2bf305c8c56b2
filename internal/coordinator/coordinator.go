// Package coordinator applies the business rules in front of the command
// relay: admin exemption, warm-service deferral, kick chaining, duplicate
// suppression, and the persistence plus group reporting that follow every
// terminal relay outcome.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/svarog-dev/warden/internal/domain"
	"github.com/svarog-dev/warden/internal/relay"
)

// AdminRegistry resolves a player's admin level within a chat group
type AdminRegistry interface {
	AdminLevel(ctx context.Context, groupID int64, name string) (int, error)
}

// WarmChecker reports whether a player currently holds an unexpired warm
// grace period shielding them from limiter-triggered moderation
type WarmChecker interface {
	IsWarmed(ctx context.Context, persona string) (bool, error)
}

// AuditStore persists one record per terminal action outcome and answers
// the recent-success counts behind the automatic-action cap
type AuditStore interface {
	RecordAction(ctx context.Context, rec domain.ActionRecord) error
	CountRecentActions(ctx context.Context, playerName string, since time.Time) (int, error)
}

// Notifier posts a human-readable report to a chat group
type Notifier interface {
	NotifyGroup(groupID int64, text string) error
}

// StatsFetcher fetches the optional derived fields attached to reports
type StatsFetcher interface {
	FetchStats(ctx context.Context, persona string) (*domain.PersonaStats, error)
}

// ServerLookup resolves tracked servers for request routing
type ServerLookup interface {
	Server(tag string) *domain.TrackedServer
	ServerByGroup(groupID int64) *domain.TrackedServer
}

// The cap on limiter-triggered actions per player. Repeated automatic
// punishment of one player within the window points at a misfiring limiter,
// not a misbehaving player.
const (
	autoActionLimit  = 3
	autoActionWindow = 24 * time.Hour
)

// ActionRequest is a high-level moderation intent from a command handler or
// automatic limiter.
type ActionRequest struct {
	Player  string
	Persona string
	Reason  string
	Admin   string
	GroupID int64
	// Report controls whether the final outcome is posted to the group
	Report bool
	// Manual marks admin-issued requests, which bypass warm-service deferral
	Manual bool
}

// modContext is the live pending-action slot for the moderation family.
// Exactly one is live at a time; it is populated when the family's first
// task is enqueued and cleared when the family's queue entries resolve.
type modContext struct {
	action    domain.TaskKind
	player    string
	persona   string
	reason    string
	admin     string
	server    domain.ServerConfig
	command   string
	report    bool
	cancelled bool
	// banReason carries the ban half's classification while a kick waits
	// for its chained unban
	banReason string
}

// serverContext is the live pending-action slot for the server family.
type serverContext struct {
	server    domain.ServerConfig
	admin     string
	command   string
	cancelled bool
}

type deferredAction struct {
	kind domain.TaskKind
	req  ActionRequest
	tag  string
}

// Coordinator owns the pending-action contexts and the warm side buffer.
// All methods must run on the scheduler goroutine.
type Coordinator struct {
	relay    *relay.Relay
	servers  ServerLookup
	admins   AdminRegistry
	warm     WarmChecker
	audit    AuditStore
	notifier Notifier
	stats    StatsFetcher
	events   func(domain.Event)
	async    func(func())

	pendingMod    *modContext
	pendingServer *serverContext
	deferred      []deferredAction
}

// New creates a coordinator. Wire HandleResult as the relay's result
// callback. events and stats may be nil.
func New(rel *relay.Relay, servers ServerLookup, admins AdminRegistry, warm WarmChecker, audit AuditStore, notifier Notifier, stats StatsFetcher, events func(domain.Event)) *Coordinator {
	return &Coordinator{
		relay:    rel,
		servers:  servers,
		admins:   admins,
		warm:     warm,
		audit:    audit,
		notifier: notifier,
		stats:    stats,
		events:   events,
		async:    func(fn func()) { go fn() },
	}
}

// RequestBan asks for a player ban in the server bound to groupID. The
// returned text is the synchronous acceptance or refusal message; the relay
// outcome is reported to the group later.
func (c *Coordinator) RequestBan(req ActionRequest) string {
	return c.requestModeration(domain.TaskBan, req, false)
}

// RequestKick asks for a player kick. On servers without a native kick the
// relay carries it as a ban followed by a silent unban.
func (c *Coordinator) RequestKick(req ActionRequest) string {
	return c.requestModeration(domain.TaskKick, req, false)
}

// RequestUnban asks for a player unban.
func (c *Coordinator) RequestUnban(req ActionRequest) string {
	return c.requestModeration(domain.TaskUnban, req, false)
}

func (c *Coordinator) requestModeration(kind domain.TaskKind, req ActionRequest, skipWarm bool) string {
	srv := c.servers.ServerByGroup(req.GroupID)
	if srv == nil {
		return "未找到该群绑定的服务器"
	}
	cfg := srv.Config()

	if kind != domain.TaskUnban {
		level, err := c.admins.AdminLevel(context.Background(), req.GroupID, req.Player)
		if err != nil {
			log.Printf("coordinator: admin lookup for %s: %v", req.Player, err)
		}
		if level >= 1 {
			return "目标玩家是管理员，已拒绝操作"
		}
	}

	if c.pendingMod != nil {
		if c.pendingMod.player == req.Player && c.pendingMod.action == kind {
			return "该玩家已有相同操作正在处理中，已忽略"
		}
		return "已有其他操作正在处理中，请稍后再试"
	}

	// Automatic actions against one player are capped over a rolling
	// window; manual admin commands are exempt.
	if !req.Manual && (kind == domain.TaskBan || kind == domain.TaskKick) {
		count, err := c.audit.CountRecentActions(context.Background(), req.Player, time.Now().Add(-autoActionWindow))
		if err != nil {
			log.Printf("coordinator: recent-action count for %s: %v", req.Player, err)
		}
		if count >= autoActionLimit {
			log.Printf("coordinator: %s of %s capped, %d automatic actions in the last %v", kind, req.Player, count, autoActionWindow)
			return "近期对该玩家的自动操作过多，已忽略"
		}
	}

	// Limiter-triggered kicks and bans respect the warm grace period; the
	// action waits in the side buffer until the warm signal arrives.
	if !req.Manual && !skipWarm && (kind == domain.TaskBan || kind == domain.TaskKick) {
		warmed, err := c.warm.IsWarmed(context.Background(), identity(req))
		if err != nil {
			log.Printf("coordinator: warm lookup for %s: %v", req.Player, err)
		}
		if warmed {
			c.deferred = append(c.deferred, deferredAction{kind: kind, req: req, tag: cfg.Tag})
			log.Printf("coordinator: deferring %s of %s, warm grace active", kind, req.Player)
			return "玩家处于暖服保护期，操作已暂缓"
		}
	}

	command := moderationCommand(kind, cfg, req)
	c.pendingMod = &modContext{
		action:  kind,
		player:  req.Player,
		persona: req.Persona,
		reason:  req.Reason,
		admin:   req.Admin,
		server:  cfg,
		command: command,
		report:  req.Report,
	}
	c.relay.Enqueue(relay.NewTask(kind, command, cfg.BotActor(), cfg.Tag))
	return acceptedText(kind, req.Player)
}

// RequestStartServer asks the hosting bot to create a server instance.
func (c *Coordinator) RequestStartServer(cfg domain.ServerConfig, admin string) string {
	if c.pendingServer != nil {
		return "已有开服请求正在处理中，已忽略"
	}
	command := fmt.Sprintf("/createServer %s", cfg.ExternalID)
	c.pendingServer = &serverContext{server: cfg, admin: admin, command: command}
	c.relay.Enqueue(relay.NewTask(domain.TaskStartServer, command, cfg.BotActor(), cfg.Tag))
	return "已提交开服请求：" + cfg.Tag
}

// OnServerWarm flushes the side buffer for a server that entered warm
// state. Each buffered action is re-checked against the warm records first
// and cancelled if the player is still protected.
func (c *Coordinator) OnServerWarm(serverTag string) {
	remaining := c.deferred[:0]
	for _, d := range c.deferred {
		if d.tag != serverTag {
			remaining = append(remaining, d)
			continue
		}
		warmed, err := c.warm.IsWarmed(context.Background(), identity(d.req))
		if err != nil {
			log.Printf("coordinator: warm re-check for %s: %v", d.req.Player, err)
		}
		if warmed {
			log.Printf("coordinator: dropping deferred %s of %s, still warm", d.kind, d.req.Player)
			continue
		}
		if c.pendingMod != nil {
			// Family slot busy; keep the entry for the next signal.
			remaining = append(remaining, d)
			continue
		}
		msg := c.requestModeration(d.kind, d.req, true)
		log.Printf("coordinator: released deferred %s of %s: %s", d.kind, d.req.Player, msg)
	}
	c.deferred = remaining
}

// OnServerRemoved marks live contexts for a vanished server so their
// finalization skips the group notification instead of failing.
func (c *Coordinator) OnServerRemoved(tag string) {
	if c.pendingMod != nil && c.pendingMod.server.Tag == tag {
		c.pendingMod.cancelled = true
	}
	if c.pendingServer != nil && c.pendingServer.server.Tag == tag {
		c.pendingServer.cancelled = true
	}
	remaining := c.deferred[:0]
	for _, d := range c.deferred {
		if d.tag != tag {
			remaining = append(remaining, d)
		}
	}
	c.deferred = remaining
}

// HandleResult receives every terminal relay outcome.
func (c *Coordinator) HandleResult(res relay.Result) {
	switch res.Task.Kind {
	case domain.TaskStartServer:
		c.finalizeServer(res)

	case domain.TaskUnbanAfterKick:
		// Internal plumbing: the outcome is swallowed, it only marks the
		// outer kick as complete.
		if !res.Success {
			log.Printf("coordinator: chained unban failed (%s), kick already effective", res.Reason)
		}
		ctx := c.pendingMod
		if ctx == nil {
			log.Printf("coordinator: chained unban resolved with no pending context")
			return
		}
		c.finalizeModeration(true, ctx.banReason)

	case domain.TaskKick:
		ctx := c.pendingMod
		if ctx == nil {
			log.Printf("coordinator: %s result with no pending context", res.Task.Kind)
			return
		}
		if res.Success && !ctx.server.IsTV {
			// No native kick on this server type: the ban worked, now
			// chain the silent unban before reporting.
			ctx.banReason = res.Reason
			command := fmt.Sprintf("/unban %s %s", ctx.player, gameName(ctx.server))
			c.relay.Enqueue(relay.NewTask(domain.TaskUnbanAfterKick, command, ctx.server.BotActor(), ctx.server.Tag))
			return
		}
		c.finalizeModeration(res.Success, res.Reason)

	case domain.TaskBan, domain.TaskUnban:
		if c.pendingMod == nil {
			log.Printf("coordinator: %s result with no pending context", res.Task.Kind)
			return
		}
		c.finalizeModeration(res.Success, res.Reason)
	}
}

// finalizeModeration clears the moderation context, persists the audit
// record, and posts the group report. Persistence and notification run off
// the scheduler goroutine.
func (c *Coordinator) finalizeModeration(success bool, reason string) {
	ctx := c.pendingMod
	c.pendingMod = nil

	c.emitOutcome(ctx.action, ctx.server, ctx.command, success, reason)

	rec := domain.ActionRecord{
		ID:         uuid.NewString(),
		Action:     ctx.action,
		PlayerName: ctx.player,
		PersonaID:  ctx.persona,
		ServerTag:  ctx.server.Tag,
		GroupID:    ctx.server.GroupID,
		Reason:     ctx.reason,
		Admin:      ctx.admin,
		Success:    success,
		Result:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	snapshot := *ctx
	c.async(func() {
		if err := c.audit.RecordAction(context.Background(), rec); err != nil {
			log.Printf("coordinator: recording %s of %s: %v", rec.Action, rec.PlayerName, err)
		}
		if snapshot.cancelled {
			log.Printf("coordinator: server %s removed mid-flight, skipping group report", snapshot.server.Tag)
			return
		}
		if !snapshot.report {
			return
		}
		var stats *domain.PersonaStats
		if c.stats != nil && snapshot.persona != "" {
			s, err := c.stats.FetchStats(context.Background(), snapshot.persona)
			if err != nil {
				log.Printf("coordinator: stats for %s: %v", snapshot.player, err)
			} else {
				stats = s
			}
		}
		text := moderationReport(snapshot.action, snapshot.player, snapshot.reason, success, reason, stats)
		if err := c.notifier.NotifyGroup(snapshot.server.GroupID, text); err != nil {
			log.Printf("coordinator: notifying group %d: %v", snapshot.server.GroupID, err)
		}
	})
}

func (c *Coordinator) finalizeServer(res relay.Result) {
	ctx := c.pendingServer
	if ctx == nil {
		log.Printf("coordinator: start-server result with no pending context")
		return
	}
	c.pendingServer = nil

	c.emitOutcome(domain.TaskStartServer, ctx.server, ctx.command, res.Success, res.Reason)

	rec := domain.ActionRecord{
		ID:        uuid.NewString(),
		Action:    domain.TaskStartServer,
		ServerTag: ctx.server.Tag,
		GroupID:   ctx.server.GroupID,
		Admin:     ctx.admin,
		Success:   res.Success,
		Result:    res.Reason,
		CreatedAt: time.Now().UTC(),
	}
	snapshot := *ctx
	c.async(func() {
		if err := c.audit.RecordAction(context.Background(), rec); err != nil {
			log.Printf("coordinator: recording start-server for %s: %v", rec.ServerTag, err)
		}
		if snapshot.cancelled {
			log.Printf("coordinator: server %s removed mid-flight, skipping group report", snapshot.server.Tag)
			return
		}
		text := startServerReport(snapshot.server, res.Success, res.Reason)
		if err := c.notifier.NotifyGroup(snapshot.server.GroupID, text); err != nil {
			log.Printf("coordinator: notifying group %d: %v", snapshot.server.GroupID, err)
		}
	})
}

func (c *Coordinator) emitOutcome(kind domain.TaskKind, server domain.ServerConfig, command string, success bool, reason string) {
	if c.events == nil {
		return
	}
	c.events(domain.Event{
		Type:      domain.EventRelayOutcome,
		ServerTag: server.Tag,
		Timestamp: time.Now().UTC(),
		Data: domain.RelayOutcomeEvent{
			Kind:    kind,
			Command: command,
			Actor:   server.BotActor(),
			Success: success,
			Reason:  reason,
		},
	})
}

// identity picks the key used against the warm records; bots and some
// players have no persona id.
func identity(req ActionRequest) string {
	if req.Persona != "" {
		return req.Persona
	}
	return req.Player
}

// moderationCommand builds the opaque command text for the external actor.
// The grammar is owned by the actor and must not be reformatted.
func moderationCommand(kind domain.TaskKind, cfg domain.ServerConfig, req ActionRequest) string {
	switch kind {
	case domain.TaskKick:
		if cfg.IsTV {
			return fmt.Sprintf("/kick %s %s", req.Player, req.Reason)
		}
		return fmt.Sprintf("/ban %s %s", req.Player, req.Reason)
	case domain.TaskUnban:
		return fmt.Sprintf("/unban %s %s", req.Player, gameName(cfg))
	default:
		return fmt.Sprintf("/ban %s %s", req.Player, req.Reason)
	}
}

func gameName(cfg domain.ServerConfig) string {
	if cfg.GameID != "" {
		return cfg.GameID
	}
	return cfg.DisplayName
}

func acceptedText(kind domain.TaskKind, player string) string {
	switch kind {
	case domain.TaskKick:
		return "已提交踢出请求：" + player
	case domain.TaskUnban:
		return "已提交解封请求：" + player
	default:
		return "已提交封禁请求：" + player
	}
}
