package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/service"
	"github.com/bwmarrin/discordgo"
)

var (
	adminPermission int64 = discordgo.PermissionManageServer
	zero                  = 0.0
)

func gameOption(required bool, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "game",
		Description: description,
		Required:    required,
	}
}

func usersOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "users",
		Description: description,
		Required:    true,
	}
}

func limitOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "limit",
		Description: "Maximum lineup size, 0 for no limit",
		Required:    required,
		MinValue:    &zero,
	}
}

func roleOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionRole,
		Name:        "role",
		Description: "Role to mention when the lineup fills",
	}
}

// registerRoutes adds every slash command to the router
func (b *Bot) registerRoutes() {
	routes := []Command{
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "join",
				Description: "Join a lineup, or all of your saved games",
				Options:     []*discordgo.ApplicationCommandOption{gameOption(false, "The game to join")},
			},
			Handler: b.handleJoin,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "leave",
				Description: "Leave a lineup, or every lineup you are in",
				Options:     []*discordgo.ApplicationCommandOption{gameOption(false, "The game to leave")},
			},
			Handler: b.handleLeave,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "add",
				Description:              "Add users to a lineup",
				DefaultMemberPermissions: &adminPermission,
				Options: []*discordgo.ApplicationCommandOption{
					gameOption(true, "The game"),
					usersOption("Users to add, as mentions"),
				},
			},
			Handler: b.handleAdd,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "kick",
				Description:              "Remove users from a lineup",
				DefaultMemberPermissions: &adminPermission,
				Options: []*discordgo.ApplicationCommandOption{
					gameOption(true, "The game"),
					usersOption("Users to remove, as mentions"),
				},
			},
			Handler: b.handleKick,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "lineup",
				Description: "Show a lineup",
				Options:     []*discordgo.ApplicationCommandOption{gameOption(true, "The game")},
			},
			Handler: b.handleLineup,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "lineups",
				Description: "Show several lineups",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "games",
						Description: "Games to show, separated by spaces (default: all)",
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "full",
						Description: "Only show full lineups",
					},
				},
			},
			Handler: b.handleLineups,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "reset",
				Description:              "Empty a lineup, or every lineup",
				DefaultMemberPermissions: &adminPermission,
				Options:                  []*discordgo.ApplicationCommandOption{gameOption(false, "The game to reset")},
			},
			Handler: b.handleReset,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "games",
				Description: "List all games",
			},
			Handler: b.handleGames,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "addgame",
				Description:              "Add a game and its lineup",
				DefaultMemberPermissions: &adminPermission,
				Options: []*discordgo.ApplicationCommandOption{
					gameOption(true, "Game name, lowercase letters and digits"),
					limitOption(false),
					roleOption(),
				},
			},
			Handler: b.handleAddGame,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "editgame",
				Description:              "Change the limit or role of a game",
				DefaultMemberPermissions: &adminPermission,
				Options: []*discordgo.ApplicationCommandOption{
					gameOption(true, "The game"),
					limitOption(false),
					roleOption(),
				},
			},
			Handler: b.handleEditGame,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "removegame",
				Description:              "Remove a game and its lineup",
				DefaultMemberPermissions: &adminPermission,
				Options:                  []*discordgo.ApplicationCommandOption{gameOption(true, "The game")},
			},
			Handler: b.handleRemoveGame,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "save",
				Description: "Save games to join with a plain /join",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "games",
						Description: "Games to save, separated by spaces",
						Required:    true,
					},
				},
			},
			Handler: b.handleSave,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "unsave",
				Description: "Remove saved games, or all of them",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "games",
						Description: "Games to remove, separated by spaces (default: all)",
					},
				},
			},
			Handler: b.handleUnsave,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "saved",
				Description: "List your saved games",
			},
			Handler: b.handleSaved,
		},
	}

	for _, r := range routes {
		b.router.Register(r)
	}
}

// handleJoin handles the /join command
func (b *Bot) handleJoin(ctx context.Context, req *Request) (string, error) {
	name := model.NormalizeGameName(req.String("game"))
	if name != "" {
		res, err := b.cache.JoinLineup(ctx, name, []string{req.UserID})
		if err != nil {
			return "", err
		}
		return joinSummary(res), nil
	}

	joins, err := b.cache.JoinSavedLineups(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	if len(joins) == 0 {
		return "You have no saved games. Use `/save` to add some, or `/join game:<game>`.", nil
	}

	lines := make([]string, 0, len(joins))
	for _, j := range joins {
		if j.Err != nil {
			lines = append(lines, fmt.Sprintf("**%s**: %s", j.Game, errorMessage(j.Err)))
			continue
		}
		lines = append(lines, joinSummary(j.Result))
	}
	return strings.Join(lines, "\n"), nil
}

// handleLeave handles the /leave command
func (b *Bot) handleLeave(ctx context.Context, req *Request) (string, error) {
	name := model.NormalizeGameName(req.String("game"))
	if name != "" {
		res, err := b.cache.LeaveLineup(ctx, name, []string{req.UserID})
		if err != nil {
			return "", err
		}
		return leaveSummary(res), nil
	}

	results, err := b.cache.LeaveAllLineups(ctx, []string{req.UserID})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "You are not in any lineup.", nil
	}
	games := make([]string, len(results))
	for i, r := range results {
		games[i] = "**" + r.Lineup.GameName + "**"
	}
	return fmt.Sprintf("%s left %s.", mention(req.UserID), strings.Join(games, ", ")), nil
}

// handleAdd handles the /add command
func (b *Bot) handleAdd(ctx context.Context, req *Request) (string, error) {
	users := parseMentions(req.String("users"))
	if len(users) == 0 {
		return "", service.ErrNoUsers
	}
	res, err := b.cache.JoinLineup(ctx, model.NormalizeGameName(req.String("game")), users)
	if err != nil {
		return "", err
	}
	return joinSummary(res), nil
}

// handleKick handles the /kick command
func (b *Bot) handleKick(ctx context.Context, req *Request) (string, error) {
	users := parseMentions(req.String("users"))
	if len(users) == 0 {
		return "", service.ErrNoUsers
	}
	res, err := b.cache.LeaveLineup(ctx, model.NormalizeGameName(req.String("game")), users)
	if err != nil {
		return "", err
	}
	return leaveSummary(res), nil
}

// handleLineup handles the /lineup command
func (b *Bot) handleLineup(_ context.Context, req *Request) (string, error) {
	name := model.NormalizeGameName(req.String("game"))
	g, err := b.cache.Game(name)
	if err != nil {
		return "", err
	}
	l, err := b.cache.Lineup(name)
	if err != nil {
		return "", err
	}
	return formatLineup(l, g), nil
}

// handleLineups handles the /lineups command
func (b *Bot) handleLineups(_ context.Context, req *Request) (string, error) {
	full := req.Bool("full")
	lineups, err := b.cache.FilteredLineups(parseGameNames(req.String("games")), full)
	if err != nil {
		return "", err
	}
	if len(lineups) == 0 {
		if full {
			return "No lineup is full.", nil
		}
		return "No lineups found. Use `/games` to see the list.", nil
	}

	lines := make([]string, 0, len(lineups))
	for _, l := range lineups {
		g, _ := b.cache.Game(l.GameName)
		lines = append(lines, formatLineup(l, g))
	}
	return strings.Join(lines, "\n"), nil
}

// handleReset handles the /reset command
func (b *Bot) handleReset(ctx context.Context, req *Request) (string, error) {
	names := parseGameNames(req.String("game"))
	reset, err := b.cache.ResetLineups(ctx, names)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return fmt.Sprintf("Reset all %d lineups.", len(reset)), nil
	}
	return fmt.Sprintf("Reset **%s**.", strings.Join(names, "**, **")), nil
}

// handleGames handles the /games command
func (b *Bot) handleGames(_ context.Context, _ *Request) (string, error) {
	games, err := b.cache.AllGames()
	if err != nil {
		return "", err
	}
	if len(games) == 0 {
		return "No games yet. An admin can add one with `/addgame`.", nil
	}

	var sb strings.Builder
	sb.WriteString("**Games:**\n")
	for _, g := range games {
		fmt.Fprintf(&sb, "- `%s` (%s)", g.Name, limitText(g))
		if g.RoleID != "" {
			fmt.Fprintf(&sb, " %s", roleMention(g.RoleID))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// handleAddGame handles the /addgame command
func (b *Bot) handleAddGame(ctx context.Context, req *Request) (string, error) {
	limit, _ := req.Int("limit")
	g, err := b.cache.AddGame(ctx, req.String("game"), req.ID("role"), limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added `%s` (%s).", g.Name, limitText(g)), nil
}

// handleEditGame handles the /editgame command
func (b *Bot) handleEditGame(ctx context.Context, req *Request) (string, error) {
	var edit service.GameEdit
	if limit, ok := req.Int("limit"); ok {
		edit.Limit = &limit
	}
	if role := req.ID("role"); role != "" {
		edit.RoleID = &role
	}
	if edit.Limit == nil && edit.RoleID == nil {
		return "Nothing to change. Give a `limit` or a `role`.", nil
	}

	g, err := b.cache.EditGame(ctx, model.NormalizeGameName(req.String("game")), edit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated `%s` (%s).", g.Name, limitText(g)), nil
}

// handleRemoveGame handles the /removegame command
func (b *Bot) handleRemoveGame(ctx context.Context, req *Request) (string, error) {
	name := model.NormalizeGameName(req.String("game"))
	if err := b.cache.RemoveGame(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed `%s` and its lineup.", name), nil
}

// handleSave handles the /save command
func (b *Bot) handleSave(ctx context.Context, req *Request) (string, error) {
	res, err := b.cache.SaveGames(ctx, req.UserID, parseGameNames(req.String("games")))
	if err != nil {
		return "", err
	}

	var lines []string
	if len(res.Saved) > 0 {
		lines = append(lines, "Saved: "+strings.Join(res.Saved, ", "))
	}
	if len(res.AlreadySaved) > 0 {
		lines = append(lines, "Already saved: "+strings.Join(res.AlreadySaved, ", "))
	}
	if len(res.UnknownGames) > 0 {
		lines = append(lines, "Unknown games: "+strings.Join(res.UnknownGames, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

// handleUnsave handles the /unsave command
func (b *Bot) handleUnsave(ctx context.Context, req *Request) (string, error) {
	names := parseGameNames(req.String("games"))
	if len(names) == 0 {
		if _, err := b.cache.ClearSavedGames(ctx, req.UserID); err != nil {
			return "", err
		}
		return "Cleared your saved games.", nil
	}

	res, err := b.cache.RemoveSavedGames(ctx, req.UserID, names)
	if err != nil {
		return "", err
	}
	var lines []string
	if len(res.Removed) > 0 {
		lines = append(lines, "Removed: "+strings.Join(res.Removed, ", "))
	}
	if len(res.NotSaved) > 0 {
		lines = append(lines, "Not saved: "+strings.Join(res.NotSaved, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

// handleSaved handles the /saved command
func (b *Bot) handleSaved(_ context.Context, req *Request) (string, error) {
	names, err := b.cache.UserSavedGames(req.UserID)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "You have no saved games.", nil
	}
	return "Your saved games: " + strings.Join(names, ", "), nil
}
