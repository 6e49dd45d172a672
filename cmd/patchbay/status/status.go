// Package statuscmder provides the status command for displaying the current
// chat session and gateway reachability.
package statuscmder

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/patchbay/pkg/cliui"
	"github.com/papercomputeco/patchbay/pkg/config"
	"github.com/papercomputeco/patchbay/pkg/dotdir"
	"github.com/papercomputeco/patchbay/pkg/utils"
)

const statusLongDesc string = `Show the current patchbay session state and gateway reachability.

Reads the local .patchbay/ directory (or ~/.patchbay/) to display the stored
chat session, including the conversation id, model, and message history, and
pings the configured gateway's health endpoint.

If no session exists, indicates that the next chat will start a new
conversation.

Examples:
  patchbay status`

const statusShortDesc string = "Show session state and gateway reachability"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(configDir)
		},
	}

	return cmd
}

func runStatus(configDir string) error {
	manager := dotdir.NewManager()

	state, err := manager.LoadSessionState(configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	fmt.Println()
	printGateway(configDir)

	if state == nil {
		fmt.Printf("  %s No session. Next chat will start a new conversation.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Conversation:"), cliui.HashStyle.Render(state.ConversationID))
	if state.Model != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Model:       "), cliui.NameStyle.Render(state.Model))
	}
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Messages:    "), cliui.ValueStyle.Render(strconv.Itoa(len(state.Messages))))

	for i, msg := range state.Messages {
		preview := utils.Truncate(msg.Content, 72)
		fmt.Printf("  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.RoleStyle.Render("["+msg.Role+"]"),
			cliui.PreviewStyle.Render(preview),
		)
	}

	fmt.Println()
	return nil
}

// printGateway reports whether the configured gateway answers its health
// endpoint. Reachability is informational; status never fails on it.
func printGateway(configDir string) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return
	}

	target := cfg.Client.GatewayTarget
	if target == "" {
		return
	}

	if pingGateway(target) {
		fmt.Printf("  %s Gateway reachable at %s\n\n", cliui.SuccessMark, cliui.ValueStyle.Render(target))
	} else {
		fmt.Printf("  %s Gateway unreachable at %s %s\n\n",
			cliui.FailMark,
			cliui.ValueStyle.Render(target),
			cliui.DimStyle.Render("(is 'patchbay serve' running?)"),
		)
	}
}

func pingGateway(target string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := strings.TrimRight(target, "/") + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
