// Package registry collects the commands, events and configurations a bot is
// built from.
//
// Units are registered explicitly and the registry is handed to startup, which
// uses it in a fixed order: configurations load, then the dispatcher syncs and
// starts routing commands, then events are bound.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/internal/configuration"
	"github.com/keshon/botkit/internal/event"
)

// Unit is one declared building block: a CommandUnit, EventUnit or
// ConfigurationUnit.
type Unit interface {
	unit()
}

type CommandUnit struct{ Command *command.Command }

type EventUnit struct{ Event event.Binding }

type ConfigurationUnit struct{ Configuration configuration.Entry }

func (CommandUnit) unit()       {}
func (EventUnit) unit()         {}
func (ConfigurationUnit) unit() {}

// Commands wraps commands as units.
func Commands(cmds ...*command.Command) []Unit {
	units := make([]Unit, len(cmds))
	for i, c := range cmds {
		units[i] = CommandUnit{Command: c}
	}
	return units
}

// Events wraps event bindings as units.
func Events(events ...event.Binding) []Unit {
	units := make([]Unit, len(events))
	for i, e := range events {
		units[i] = EventUnit{Event: e}
	}
	return units
}

// Configurations wraps configuration entries as units.
func Configurations(entries ...configuration.Entry) []Unit {
	units := make([]Unit, len(entries))
	for i, e := range entries {
		units[i] = ConfigurationUnit{Configuration: e}
	}
	return units
}

// Registry stores units by identity. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	log      zerolog.Logger
	commands map[string]*command.Command
	events   map[string]event.Binding
	configs  map[string]configuration.Entry
}

// New returns an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		log:      log.With().Str("component", "registry").Logger(),
		commands: make(map[string]*command.Command),
		events:   make(map[string]event.Binding),
		configs:  make(map[string]configuration.Entry),
	}
}

// Register adds units. Command names and configuration keys must be unique;
// a second binding for an event name replaces the first.
func (r *Registry) Register(units ...Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range units {
		switch v := u.(type) {
		case CommandUnit:
			name := v.Command.Name()
			if _, exists := r.commands[name]; exists {
				return fmt.Errorf("command %q is already registered", name)
			}
			r.commands[name] = v.Command
		case EventUnit:
			name := v.Event.Name()
			if _, exists := r.events[name]; exists {
				r.log.Warn().Str("event", name).Msg("Event registered twice, the last binding wins")
			}
			r.events[name] = v.Event
		case ConfigurationUnit:
			key := v.Configuration.Key()
			if _, exists := r.configs[key]; exists {
				return fmt.Errorf("configuration %q is already registered", key)
			}
			r.configs[key] = v.Configuration
		default:
			return fmt.Errorf("unknown unit %T", u)
		}
	}
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(units ...Unit) {
	if err := r.Register(units...); err != nil {
		panic(err)
	}
}

// Command returns the command with the given name, or nil.
func (r *Registry) Command(name string) *command.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// Commands returns all commands, sorted by name.
func (r *Registry) Commands() []*command.Command {
	r.mu.RLock()
	list := make([]*command.Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Events returns all event bindings, sorted by name.
func (r *Registry) Events() []event.Binding {
	r.mu.RLock()
	list := make([]event.Binding, 0, len(r.events))
	for _, e := range r.events {
		list = append(list, e)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Configuration returns the entry with the given key, or nil.
func (r *Registry) Configuration(key string) configuration.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[key]
}

// Configurations returns all configuration entries, sorted by key.
func (r *Registry) Configurations() []configuration.Entry {
	r.mu.RLock()
	list := make([]configuration.Entry, 0, len(r.configs))
	for _, c := range r.configs {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Key() < list[j].Key()
	})
	return list
}
