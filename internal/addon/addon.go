// Package addon groups commands, events and configurations into versioned,
// independently loadable units.
package addon

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/registry"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Manifest describes an addon.
type Manifest struct {
	ID          string
	Name        string
	Description string
	Version     string
	Author      string
	// Requires is an optional constraint on the host version, e.g. ">= 1.2".
	Requires string
}

// Validate checks the manifest fields.
func (m Manifest) Validate() error {
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("addon id %q must be lowercase letters, digits, '-' or '_'", m.ID)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("addon %s: name is required", m.ID)
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("addon %s: invalid version %q: %w", m.ID, m.Version, err)
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return fmt.Errorf("addon %s: invalid host constraint %q: %w", m.ID, m.Requires, err)
		}
	}
	return nil
}

// Compatible reports whether host satisfies the manifest's constraint.
func (m Manifest) Compatible(host *semver.Version) (bool, error) {
	if m.Requires == "" || host == nil {
		return true, nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return false, err
	}
	return c.Check(host), nil
}

// Loader declares the units of an addon.
type Loader func(ctx context.Context) ([]registry.Unit, error)

// Addon is a manifest with its loader.
type Addon struct {
	Manifest Manifest
	Load     Loader
}

// New declares an addon.
func New(m Manifest, load Loader) *Addon {
	return &Addon{Manifest: m, Load: load}
}

// ErrIncompatible is returned for an addon whose host constraint is not met.
var ErrIncompatible = errors.New("addon is incompatible with this host")

// Install validates and loads every addon and registers their units in r.
// Configurations declared by an addon must be namespaced under its ID.
func Install(ctx context.Context, r *registry.Registry, host *semver.Version, log zerolog.Logger, addons ...*Addon) error {
	seen := make(map[string]struct{}, len(addons))

	for _, a := range addons {
		m := a.Manifest
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("addon %s is declared twice", m.ID)
		}
		seen[m.ID] = struct{}{}

		ok, err := m.Compatible(host)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s %s requires host %s, have %s: %w", m.ID, m.Version, m.Requires, host, ErrIncompatible)
		}

		units, err := a.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load addon %s: %w", m.ID, err)
		}
		for _, u := range units {
			if c, ok := u.(registry.ConfigurationUnit); ok && !strings.HasPrefix(c.Configuration.Key(), m.ID+"/") {
				return fmt.Errorf("addon %s: configuration %s must be declared with Addon %q", m.ID, c.Configuration.Key(), m.ID)
			}
		}
		if err := r.Register(units...); err != nil {
			return fmt.Errorf("addon %s: %w", m.ID, err)
		}

		log.Info().
			Str("addon", m.ID).
			Str("version", m.Version).
			Str("author", m.Author).
			Int("units", len(units)).
			Msg("Loaded addon")
	}
	return nil
}
