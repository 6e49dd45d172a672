// Package patchbaycmder
package patchbaycmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/patchbay/cmd/patchbay/auth"
	chatcmder "github.com/papercomputeco/patchbay/cmd/patchbay/chat"
	configcmder "github.com/papercomputeco/patchbay/cmd/patchbay/config"
	initcmder "github.com/papercomputeco/patchbay/cmd/patchbay/init"
	modelscmder "github.com/papercomputeco/patchbay/cmd/patchbay/models"
	servecmder "github.com/papercomputeco/patchbay/cmd/patchbay/serve"
	statuscmder "github.com/papercomputeco/patchbay/cmd/patchbay/status"
	versioncmder "github.com/papercomputeco/patchbay/cmd/version"
)

const patchbayLongDesc string = `Patchbay is a streaming chat gateway for heterogeneous LLM backends.

It fronts an OpenAI-compatible backend and an Ollama backend behind one
OpenAI-style surface, rewrites each backend's native stream on the fly,
and records every finished conversation turn.

Run the gateway using:
  patchbay serve       Run the gateway server

Talk to a running gateway using:
  patchbay chat        Interactive chat session
  patchbay models      List models across both backends`

const patchbayShortDesc string = "Patchbay - Streaming Chat Gateway"

func NewPatchbayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patchbay",
		Short: patchbayShortDesc,
		Long:  patchbayLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .patchbay/ directory location")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
