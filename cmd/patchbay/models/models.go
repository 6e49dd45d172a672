// Package modelscmder provides the models command for listing the gateway's
// merged model catalog.
package modelscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/patchbay/pkg/cliui"
	"github.com/papercomputeco/patchbay/pkg/config"
)

type modelsCommander struct {
	gatewayTarget string
	backend       string
}

// modelEntry mirrors one /v1/models item, including the gateway's extended
// catalog metadata.
type modelEntry struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Backend       string   `json:"backend"`
	ContextLength int      `json:"context_length,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
	ParameterSize string   `json:"parameter_size,omitempty"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

const modelsLongDesc string = `List models across both backends.

Queries a running gateway's /v1/models endpoint, which merges the model
catalogs of the configured OpenAI-compatible and Ollama backends, applies
any capability overrides, and reports which backend each model routes to.

Examples:
  patchbay models
  patchbay models --backend ollama
  patchbay models --gateway-target http://localhost:8080`

const modelsShortDesc string = "List models across both backends"

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("gateway-target") {
				cmder.gatewayTarget = cfg.Client.GatewayTarget
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.gatewayTarget, "gateway-target", "g", defaults.Client.GatewayTarget, "Patchbay gateway URL")
	cmd.Flags().StringVarP(&cmder.backend, "backend", "b", "", "Only show models on this backend (openai or ollama)")

	return cmd
}

func (c *modelsCommander) run() error {
	models, err := c.fetchModels()
	if err != nil {
		return err
	}

	if c.backend != "" {
		filtered := models[:0]
		for _, m := range models {
			if m.Backend == c.backend {
				filtered = append(filtered, m)
			}
		}
		models = filtered
	}

	if len(models) == 0 {
		fmt.Printf("\n  %s No models found.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("Models (%d)", len(models))))

	idWidth := 0
	for _, m := range models {
		if len(m.ID) > idWidth {
			idWidth = len(m.ID)
		}
	}

	for _, m := range models {
		fmt.Printf("  %-*s  %s%s\n",
			idWidth+len(cliui.NameStyle.Render(m.ID))-len(m.ID), cliui.NameStyle.Render(m.ID),
			cliui.KeyStyle.Render(m.Backend),
			cliui.DimStyle.Render(details(m)),
		)
	}
	fmt.Println()

	return nil
}

// details formats the optional catalog metadata trailing a model row.
func details(m modelEntry) string {
	var parts []string
	if m.ParameterSize != "" {
		parts = append(parts, m.ParameterSize)
	}
	if m.ContextLength > 0 {
		parts = append(parts, strconv.Itoa(m.ContextLength)+" ctx")
	}
	if len(m.Capabilities) > 0 {
		parts = append(parts, strings.Join(m.Capabilities, ","))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  (" + strings.Join(parts, ", ") + ")"
}

func (c *modelsCommander) fetchModels() ([]modelEntry, error) {
	url := strings.TrimRight(c.gatewayTarget, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("parsing model list: %w", err)
	}

	return list.Data, nil
}
