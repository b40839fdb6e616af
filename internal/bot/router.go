package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc runs a slash command and returns the reply text
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Command pairs a slash command definition with its handler
type Command struct {
	Definition *discordgo.ApplicationCommand
	Handler    HandlerFunc
}

// Router manages all registered slash commands
type Router struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{
		commands: make(map[string]Command),
	}
}

// Register adds a command, replacing any command with the same name
func (r *Router) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Definition.Name] = cmd
}

// Get retrieves a command by name
func (r *Router) Get(name string) (Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[name]
	if !ok {
		return Command{}, fmt.Errorf("unknown command: %s", name)
	}
	return cmd, nil
}

// Definitions returns every command definition sorted by name
func (r *Router) Definitions() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		defs = append(defs, cmd.Definition)
	}
	slices.SortFunc(defs, func(a, b *discordgo.ApplicationCommand) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// Request is the parsed form of a slash command interaction
type Request struct {
	Command string
	UserID  string
	GuildID string
	Options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func newRequest(i *discordgo.InteractionCreate) *Request {
	data := i.ApplicationCommandData()
	req := &Request{
		Command: data.Name,
		GuildID: i.GuildID,
		Options: make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options)),
	}
	if i.Member != nil && i.Member.User != nil {
		req.UserID = i.Member.User.ID
	} else if i.User != nil {
		req.UserID = i.User.ID
	}
	for _, o := range data.Options {
		req.Options[o.Name] = o
	}
	return req
}

// String returns a string option, or "" when absent
func (r *Request) String(name string) string {
	if o, ok := r.Options[name]; ok {
		return strings.TrimSpace(o.StringValue())
	}
	return ""
}

// Int returns an integer option and whether it was given
func (r *Request) Int(name string) (int, bool) {
	if o, ok := r.Options[name]; ok {
		return int(o.IntValue()), true
	}
	return 0, false
}

// Bool returns a boolean option, false when absent
func (r *Request) Bool(name string) bool {
	if o, ok := r.Options[name]; ok {
		return o.BoolValue()
	}
	return false
}

// ID returns the snowflake of a user or role option, or "" when absent
func (r *Request) ID(name string) string {
	if o, ok := r.Options[name]; ok {
		if id, ok := o.Value.(string); ok {
			return id
		}
	}
	return ""
}
