package bot

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// Handler executes a slash command
type Handler func(ctx context.Context, req *Request) error

// Command binds a slash command definition to its handler
type Command struct {
	Definition *discordgo.ApplicationCommand
	Handler    Handler
	// AdminOnly restricts the command to the configured admin users.
	AdminOnly bool
}

// Registry maps command names to commands
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmd. Names must be unique.
func (r *Registry) Register(cmd Command) error {
	if cmd.Definition == nil || cmd.Definition.Name == "" {
		return fmt.Errorf("command definition must have a name")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Definition.Name)
	}
	if _, exists := r.commands[cmd.Definition.Name]; exists {
		return fmt.Errorf("command %q already registered", cmd.Definition.Name)
	}
	r.commands[cmd.Definition.Name] = cmd
	return nil
}

// Lookup returns the command registered under name
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Definitions returns every command definition sorted by name
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		defs = append(defs, cmd.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered commands
func (r *Registry) Len() int {
	return len(r.commands)
}
