package domain

// TaskKind tags the business meaning of a relay task
type TaskKind string

const (
	TaskBan            TaskKind = "ban"
	TaskKick           TaskKind = "kick"
	TaskUnban          TaskKind = "unban"
	TaskStartServer    TaskKind = "start_server"
	TaskUnbanAfterKick TaskKind = "unban_after_kick"
)

// TaskFamily groups task kinds that share a pending-action context and a
// consecutive-failure counter.
type TaskFamily string

const (
	FamilyModeration TaskFamily = "moderation"
	FamilyServer     TaskFamily = "server"
)

// Family returns the context family a task kind belongs to.
func (k TaskKind) Family() TaskFamily {
	if k == TaskStartServer {
		return FamilyServer
	}
	return FamilyModeration
}

// Chained reports whether the kind is internal plumbing whose outcome is
// never separately reported to the chat group.
func (k TaskKind) Chained() bool {
	return k == TaskUnbanAfterKick
}
