package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/localcache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/service"
)

const msgStartingUp = "The bot is still starting up. Please try again in a moment."

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// parseMentions extracts user ids from a string of user mentions
func parseMentions(s string) []string {
	matches := mentionPattern.FindAllStringSubmatch(s, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// parseGameNames splits a space or comma separated list of game names
func parseGameNames(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, model.NormalizeGameName(f))
	}
	return names
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func mentions(userIDs []string) string {
	parts := make([]string, len(userIDs))
	for i, id := range userIDs {
		parts[i] = mention(id)
	}
	return strings.Join(parts, ", ")
}

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

func limitText(g *model.Game) string {
	if g.IsInfinite() {
		return "no limit"
	}
	return fmt.Sprintf("limit %d", g.Limit)
}

// formatLineup renders one lineup with its fill level
func formatLineup(l *model.Lineup, g *model.Game) string {
	var sb strings.Builder
	if g != nil && !g.IsInfinite() {
		fmt.Fprintf(&sb, "**%s** (%d/%d)", l.GameName, l.UserCount(), g.Limit)
	} else {
		fmt.Fprintf(&sb, "**%s** (%d)", l.GameName, l.UserCount())
	}
	if l.UserCount() == 0 {
		sb.WriteString(": empty")
		return sb.String()
	}
	sb.WriteString(": ")
	sb.WriteString(mentions(l.Users))
	return sb.String()
}

// joinSummary describes every bucket of a join result
func joinSummary(res *service.JoinResult) string {
	var lines []string
	name := res.Lineup.GameName
	if len(res.ValidUsers) > 0 {
		lines = append(lines, fmt.Sprintf("%s joined %s", mentions(res.ValidUsers), formatLineup(res.Lineup, res.Game)))
	}
	if len(res.InvalidUsers) > 0 {
		lines = append(lines, fmt.Sprintf("%s already in **%s**.", mentions(res.InvalidUsers), name))
	}
	if len(res.ExcludedUsers) > 0 {
		lines = append(lines, fmt.Sprintf("No room in **%s** for %s.", name, mentions(res.ExcludedUsers)))
	}
	if res.BecameFull {
		full := fmt.Sprintf("The **%s** lineup is full!", name)
		if res.Game.RoleID != "" {
			full = roleMention(res.Game.RoleID) + " " + full
		}
		lines = append(lines, full)
	}
	return strings.Join(lines, "\n")
}

// leaveSummary describes a leave or kick result
func leaveSummary(res *service.LeaveResult) string {
	var lines []string
	name := res.Lineup.GameName
	if len(res.Removed) > 0 {
		lines = append(lines, fmt.Sprintf("%s left **%s**.", mentions(res.Removed), name))
	}
	if len(res.NotMembers) > 0 {
		lines = append(lines, fmt.Sprintf("%s not in **%s**.", mentions(res.NotMembers), name))
	}
	return strings.Join(lines, "\n")
}

// resetAnnouncement is the daily reset notice
func resetAnnouncement(lineups []*model.Lineup) string {
	if len(lineups) == 0 {
		return "Daily reset done. There were no lineups to clear."
	}
	names := make([]string, len(lineups))
	for i, l := range lineups {
		names[i] = "**" + l.GameName + "**"
	}
	return fmt.Sprintf("Daily reset done. Cleared %s. Use `/join` to line up again.", strings.Join(names, ", "))
}

// errorMessage turns a command error into a user-facing reply
func errorMessage(err error) string {
	var partial *service.PartiallyAppliedError
	switch {
	case errors.Is(err, localcache.ErrNotReady):
		return msgStartingUp
	case errors.As(err, &partial):
		return fmt.Sprintf("The %s only partly went through (%s). Please try again.", partial.Op, partial.Completed)
	case errors.Is(err, service.ErrCapacityExceeded):
		return "That lineup is full."
	case errors.Is(err, service.ErrNotFound):
		return "No such game. Use `/games` to see the list."
	case errors.Is(err, service.ErrGameExists):
		return "That game already exists."
	case errors.Is(err, model.ErrInvalidGameName):
		return "Game names may only contain lowercase letters and digits."
	case errors.Is(err, model.ErrInvalidLimit):
		return "The limit must be 0 (no limit) or more."
	case errors.Is(err, service.ErrNoUsers):
		return "Mention at least one user."
	case errors.Is(err, service.ErrStoreUnavailable):
		return "Storage is unavailable right now. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}
