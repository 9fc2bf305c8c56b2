package coordinator

import (
	"fmt"
	"strings"

	"github.com/svarog-dev/warden/internal/domain"
)

const unknownField = "未知"

// moderationReport renders the group-visible outcome text for a moderation
// action. Derived stats are best-effort; missing values render as 未知.
func moderationReport(action domain.TaskKind, player, reason string, success bool, detail string, stats *domain.PersonaStats) string {
	prefix := actionLabel(action)

	var b strings.Builder
	if success {
		fmt.Fprintf(&b, "%s成功：%s", prefix, player)
		if reason != "" && action != domain.TaskUnban {
			fmt.Fprintf(&b, "\n原因：%s", reason)
		}
		if action != domain.TaskUnban {
			fmt.Fprintf(&b, "\n等级：%s  K/D：%s  时长：%s",
				statLevel(stats), statKD(stats), statPlaytime(stats))
		}
	} else {
		fmt.Fprintf(&b, "%s失败：%s", prefix, player)
		if detail != "" {
			fmt.Fprintf(&b, "（%s）", detail)
		}
	}
	return b.String()
}

func startServerReport(cfg domain.ServerConfig, success bool, detail string) string {
	if success {
		return fmt.Sprintf("服务器创建成功：%s", cfg.Tag)
	}
	text := fmt.Sprintf("服务器创建失败：%s", cfg.Tag)
	if detail != "" {
		text += fmt.Sprintf("（%s）", detail)
	}
	return text
}

func actionLabel(action domain.TaskKind) string {
	switch action {
	case domain.TaskKick:
		return "踢出玩家"
	case domain.TaskUnban:
		return "解封玩家"
	default:
		return "屏蔽玩家"
	}
}

func statLevel(s *domain.PersonaStats) string {
	if s == nil || s.Level == 0 {
		return unknownField
	}
	return fmt.Sprintf("%d", s.Level)
}

func statKD(s *domain.PersonaStats) string {
	if s == nil || s.KDRatio == 0 {
		return unknownField
	}
	return fmt.Sprintf("%.2f", s.KDRatio)
}

func statPlaytime(s *domain.PersonaStats) string {
	if s == nil || s.PlayedMinutes == 0 {
		return unknownField
	}
	return fmt.Sprintf("%d分钟", s.PlayedMinutes)
}
