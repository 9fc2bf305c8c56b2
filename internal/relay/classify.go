package relay

import (
	"strings"

	"github.com/svarog-dev/warden/internal/domain"
)

// Outcome is how a classified reply drives the state machine
type Outcome int

const (
	// OutcomeSuccess pops the task and finalizes it as done
	OutcomeSuccess Outcome = iota
	// OutcomeTransient retries the same task until its family's
	// consecutive-failure ceiling is hit
	OutcomeTransient
	// OutcomePermanent pops the task and finalizes it as failed
	OutcomePermanent
)

// Classification is the verdict for one inbound reply
type Classification struct {
	Outcome Outcome
	Reason  string
}

// Classifier maps free-text bot replies to outcomes. The wording belongs to
// a third party we do not control, so the rule tables live behind this
// interface and can be swapped without touching the state machine.
type Classifier interface {
	// Classify returns false when the text matches no known phrasing, in
	// which case the relay keeps waiting.
	Classify(kind domain.TaskKind, text string) (Classification, bool)
}

// Rule is one prioritized substring pattern
type Rule struct {
	Pattern string
	Outcome Outcome
}

// TableClassifier classifies replies against ordered per-family rule
// tables; the first matching pattern wins.
type TableClassifier struct {
	moderation []Rule
	server     []Rule
}

// NewTableClassifier returns a classifier loaded with the known reply
// phrasing of the live RunRun/TVBot accounts.
func NewTableClassifier() *TableClassifier {
	return &TableClassifier{
		moderation: []Rule{
			{Pattern: "未在任何服务器中找到该玩家", Outcome: OutcomeTransient},
			{Pattern: "封禁玩家成功", Outcome: OutcomeSuccess},
			{Pattern: "屏蔽玩家成功", Outcome: OutcomeSuccess},
			{Pattern: "解封玩家成功", Outcome: OutcomeSuccess},
			{Pattern: "踢出玩家成功", Outcome: OutcomeSuccess},
			{Pattern: "玩家不在游戏中", Outcome: OutcomePermanent},
			{Pattern: "没有操作权限", Outcome: OutcomePermanent},
			{Pattern: "未查询到玩家信息", Outcome: OutcomePermanent},
			{Pattern: "封禁玩家失败", Outcome: OutcomePermanent},
			{Pattern: "解封玩家失败", Outcome: OutcomePermanent},
		},
		server: []Rule{
			{Pattern: "服务器创建成功", Outcome: OutcomeSuccess},
			{Pattern: "在处理过程中出现显式错误", Outcome: OutcomeTransient},
		},
	}
}

// Classify implements Classifier.
func (c *TableClassifier) Classify(kind domain.TaskKind, text string) (Classification, bool) {
	table := c.moderation
	if kind.Family() == domain.FamilyServer {
		table = c.server
	}
	for _, rule := range table {
		if strings.Contains(text, rule.Pattern) {
			return Classification{Outcome: rule.Outcome, Reason: rule.Pattern}, true
		}
	}
	return Classification{}, false
}
