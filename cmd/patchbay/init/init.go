// Package initcmder provides the init command for initializing a local
// .patchbay directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/patchbay/pkg/config"
)

const (
	dirName = ".patchbay"
)

const initLongDesc string = `Initialize a new .patchbay/ directory in the current working directory.

Creates a local .patchbay/ directory that takes precedence over the default
~/.patchbay/ directory for configuration, credentials, transcripts, and
session state.

This is useful for maintaining separate patchbay state per project or
directory.

With --preset, a config.toml is written alongside the directory. Presets are
either a built-in name (openai, ollama) selecting the default backend, or an
HTTP URL serving a config.toml to adopt.

Examples:
  patchbay init
  patchbay init --preset ollama
  patchbay init --preset https://example.com/team-config.toml`

const initShortDesc string = "Initialize a local .patchbay/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Config preset: a name ("+strings.Join(config.ValidPresetNames(), ", ")+") or a URL to a config.toml")

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Printf("Already initialized: %s\n", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .patchbay directory: %w", err)
		}
		fmt.Printf("Initialized .patchbay directory: %s\n", dir)
	}

	if preset == "" {
		return nil
	}

	cfg, err := presetConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Wrote config.toml (preset %q)\n", preset)
	return nil
}

// presetConfig resolves a preset argument to a Config: a built-in preset
// name, or a URL serving TOML.
func presetConfig(preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(preset)
	}

	return config.PresetConfig(preset)
}

func fetchRemoteConfig(url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
