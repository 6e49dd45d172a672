package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Override adjusts or adds a catalog entry for one model id. Zero-valued
// fields leave the discovered value in place.
type Override struct {
	Name          string   `toml:"name"`
	Backend       string   `toml:"backend"`
	ContextLength int      `toml:"context_length"`
	Capabilities  []string `toml:"capabilities"`
	Family        string   `toml:"family"`
	ParameterSize string   `toml:"parameter_size"`
}

type overridesFile struct {
	Models map[string]Override `toml:"models"`
}

type overrideEntry struct {
	id       string
	override Override
}

// Overrides holds per-model corrections loaded from a TOML file, reloadable
// while the gateway runs.
type Overrides struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	models map[string]overrideEntry
}

// LoadOverrides reads the overrides file at path. A missing file yields an
// empty set; an empty path disables overrides entirely.
func LoadOverrides(path string, logger *zap.Logger) (*Overrides, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Overrides{
		path:   path,
		logger: logger,
		models: make(map[string]overrideEntry),
	}

	if path == "" {
		return o, nil
	}

	if err := o.reload(); err != nil {
		return nil, err
	}

	return o, nil
}

// Len reports how many model overrides are loaded.
func (o *Overrides) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.models)
}

// Apply lays the overrides onto a discovered catalog. Overrides that match
// no discovered model become entries of their own when they name a backend;
// without a backend they would be unroutable and are skipped.
func (o *Overrides) Apply(models []Model) []Model {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.models) == 0 {
		return models
	}

	applied := make(map[string]struct{}, len(o.models))
	out := make([]Model, 0, len(models))
	for _, m := range models {
		key := NormalizeID(m.ID)
		if entry, ok := o.models[key]; ok {
			m = entry.override.apply(m)
			applied[key] = struct{}{}
		}
		out = append(out, m)
	}

	for key, entry := range o.models {
		if _, ok := applied[key]; ok {
			continue
		}
		if entry.override.Backend == "" {
			continue
		}
		out = append(out, entry.override.model(entry.id))
	}

	sortModels(out)

	return out
}

// Watch reloads the overrides file on change until ctx is done. It returns
// immediately when no overrides path is configured. Reload failures are
// logged and watching continues with the previous set.
func (o *Overrides) Watch(ctx context.Context) error {
	if o.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating overrides watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(o.path)); err != nil {
		return fmt.Errorf("watching overrides dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(o.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := o.reload(); err != nil {
				o.logger.Warn("reloading overrides failed", zap.Error(err))
				continue
			}
			o.logger.Info("overrides reloaded", zap.Int("models", o.Len()))
		case err := <-watcher.Errors:
			return fmt.Errorf("overrides watcher error: %w", err)
		}
	}
}

func (o *Overrides) reload() error {
	data, err := os.ReadFile(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			o.mu.Lock()
			o.models = make(map[string]overrideEntry)
			o.mu.Unlock()

			return nil
		}

		return fmt.Errorf("reading overrides: %w", err)
	}

	var file overridesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing overrides: %w", err)
	}

	models := make(map[string]overrideEntry, len(file.Models))
	for id, override := range file.Models {
		models[NormalizeID(id)] = overrideEntry{id: id, override: override}
	}

	o.mu.Lock()
	o.models = models
	o.mu.Unlock()

	return nil
}

// apply overlays the override onto a discovered model.
func (ov Override) apply(m Model) Model {
	return overlayModel(m, Model{
		Name:          ov.Name,
		Backend:       ov.Backend,
		ContextLength: ov.ContextLength,
		Capabilities:  ov.Capabilities,
		Family:        ov.Family,
		ParameterSize: ov.ParameterSize,
	})
}

// model builds a standalone catalog entry from an override with no
// discovered counterpart.
func (ov Override) model(id string) Model {
	return Model{
		ID:            id,
		Name:          ov.Name,
		Backend:       ov.Backend,
		ContextLength: ov.ContextLength,
		Capabilities:  unionCapabilities(nil, ov.Capabilities),
		Family:        ov.Family,
		ParameterSize: ov.ParameterSize,
	}
}
