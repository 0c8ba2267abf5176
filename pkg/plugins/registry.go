// Copyright 2024-2026 Aiku AI

package plugins

import "github.com/rs/zerolog"

// Registry owns all loaded plugins for the life of the process. The map
// is populated once by Load and treated as read-only afterwards, so
// lookups need no locking.
type Registry struct {
	plugins map[string]Plugin
	order   []string
	log     zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		log:     log.With().Str("component", "plugin_registry").Logger(),
	}
}

// Load resolves each configured name through the factory table,
// constructs and initializes the plugin, and indexes it by its own
// declared name. A name that fails to resolve, construct or initialize
// is skipped with a logged error; loading never fails as a whole.
func (r *Registry) Load(names []string, factories map[string]Factory, deps Deps) {
	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			r.log.Error().Str("plugin", name).Msg("Unknown plugin name, skipping")
			continue
		}
		plugin, err := factory(deps)
		if err != nil {
			r.log.Error().Err(err).Str("plugin", name).Msg("Failed to construct plugin, skipping")
			continue
		}
		if err := plugin.Initialize(); err != nil {
			r.log.Error().Err(err).Str("plugin", name).Msg("Failed to initialize plugin, skipping")
			continue
		}
		key := plugin.Name()
		if _, exists := r.plugins[key]; !exists {
			r.order = append(r.order, key)
		}
		r.plugins[key] = plugin
		r.log.Info().Str("plugin", key).Msg("Loaded plugin")
	}
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// All returns the loaded plugins in insertion order.
func (r *Registry) All() []Plugin {
	result := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// Shutdown cleans up every loaded plugin. A failing cleanup is logged
// and does not prevent the remaining plugins from being cleaned up.
func (r *Registry) Shutdown() {
	for _, name := range r.order {
		if err := r.plugins[name].Cleanup(); err != nil {
			r.log.Error().Err(err).Str("plugin", name).Msg("Plugin cleanup failed")
		}
	}
}
