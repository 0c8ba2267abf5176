// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-aibot/pkg/plugins"
)

// Dispatcher resolves a command verb to a built-in command or a loaded
// plugin and invokes it. Built-ins win over plugins with the same name.
type Dispatcher struct {
	registry *plugins.Registry
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *plugins.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      log.With().Str("component", "command_dispatcher").Logger(),
	}
}

// Execute runs the command and returns the reply text, or an empty
// string when the command produced its own side effects. An unmatched
// verb yields a plain-text response rather than an error.
func (d *Dispatcher) Execute(ctx context.Context, verb string, args []string, channelID, userID string) string {
	if verb == "help" {
		return d.helpCommand(args)
	}
	plugin, ok := d.registry.Get(verb)
	if !ok {
		return fmt.Sprintf("Unknown command: %s", verb)
	}
	return d.invoke(ctx, plugin, args, channelID, userID)
}

// invoke runs a plugin, converting a panic into a short user-facing
// message so one misbehaving provider cannot take down the event loop.
func (d *Dispatcher) invoke(ctx context.Context, plugin plugins.Plugin, args []string, channelID, userID string) (response string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("plugin", plugin.Name()).
				Msg("Plugin panicked during execute")
			response = "Something went wrong while handling that request."
		}
	}()
	return plugin.Execute(ctx, args, channelID, userID)
}

func (d *Dispatcher) helpCommand(args []string) string {
	if len(args) > 0 {
		name := strings.ToLower(args[0])
		plugin, ok := d.registry.Get(name)
		if !ok {
			return fmt.Sprintf("Unknown plugin: %s", name)
		}
		return fmt.Sprintf("%s: %s\nUsage: %s", plugin.Name(), plugin.Description(), plugin.Usage())
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	b.WriteString("  /help [plugin_name] - Show this help message or get help for a specific plugin\n")
	for _, plugin := range d.registry.All() {
		fmt.Fprintf(&b, "  /%s - %s\n", plugin.Name(), plugin.Description())
	}
	return b.String()
}
