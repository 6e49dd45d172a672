// Package chatcmder provides the chat command for interactive LLM chat
// through the patchbay gateway.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/gateway/header"
	"github.com/papercomputeco/patchbay/pkg/cliui"
	"github.com/papercomputeco/patchbay/pkg/config"
	"github.com/papercomputeco/patchbay/pkg/dotdir"
	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/llm/provider"
	"github.com/papercomputeco/patchbay/pkg/logger"
	"github.com/papercomputeco/patchbay/pkg/stream"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
	toolCallStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
)

type chatCommander struct {
	gatewayTarget string
	model         string
	clear         bool
	render        bool
	logFile       string
	configDir     string
	debug         bool

	log     *slog.Logger
	decoder *stream.Decoder
	ddm     *dotdir.Manager
	session *dotdir.SessionState
}

const chatLongDesc string = `Start an interactive chat session through the patchbay gateway.

Messages go to the gateway's OpenAI-compatible surface; the gateway routes
them to a backend by model and streams the answer back as SSE. The session
(conversation id, model, and message history) is persisted in the .patchbay/
directory, so a new "patchbay chat" continues where the last one stopped.

Use --clear to drop the stored session and start a new conversation, and
--render to re-render each finished answer as markdown.

Examples:
  patchbay chat --model llama3.2
  patchbay chat --model gpt-4o --gateway-target http://localhost:8080
  patchbay chat --clear`

const chatShortDesc string = "Interactive LLM chat through the patchbay gateway"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(cmder.configDir)
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
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.gatewayTarget, "gateway-target", "g", defaults.Client.GatewayTarget, "Patchbay gateway URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name (e.g., gpt-4o, llama3.2)")
	cmd.Flags().BoolVar(&cmder.clear, "clear", false, "Clear the stored session and start a new conversation")
	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Re-render finished answers as markdown")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write debug logs to this file")

	return cmd
}

func (c *chatCommander) run() error {
	if err := c.createLogger(); err != nil {
		return err
	}

	// The stream decoder logs through zap like the rest of the streaming
	// stack. Interactive output must stay clean, so its diagnostics go to
	// stderr and only when --debug is set.
	zl := zap.NewNop()
	if c.debug {
		zl = logger.NewLoggerWithWriters(true, os.Stderr)
	}
	c.decoder = stream.New(stream.Config{Logger: zl})

	c.ddm = dotdir.NewManager()

	if c.clear {
		if err := c.ddm.ClearSession(c.configDir); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
	}

	state, err := c.ddm.LoadSessionState(c.configDir)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	fmt.Println()
	if state != nil && len(state.Messages) > 0 {
		if c.model == "" {
			c.model = state.Model
		}
		fmt.Printf("  %s Resuming conversation %s %s\n",
			cliui.SuccessMark,
			cliui.HashStyle.Render(state.ConversationID),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(state.Messages))),
		)
	} else {
		state = &dotdir.SessionState{}
		fmt.Printf("  %s New conversation\n", cliui.DimStyle.Render("●"))
	}
	c.session = state

	if c.model == "" {
		return fmt.Errorf("model is required (use --model or resume a session)")
	}

	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.model),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		c.session.Messages = append(c.session.Messages, dotdir.SessionMessage{
			Role:    llm.RoleUser,
			Content: input,
		})

		assistantContent, err := c.sendAndStream()
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			// Remove the failed user message so we can retry
			c.session.Messages = c.session.Messages[:len(c.session.Messages)-1]
			continue
		}

		c.session.Messages = append(c.session.Messages, dotdir.SessionMessage{
			Role:    llm.RoleAssistant,
			Content: assistantContent,
		})
		c.session.Model = c.model

		if err := c.ddm.SaveSession(c.session, c.configDir); err != nil {
			c.log.Warn("failed to save session", "error", err)
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// createLogger builds the chat command's slog logger: pretty on the terminal,
// optionally fanned out to a JSON log file.
func (c *chatCommander) createLogger() error {
	pretty := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	if c.logFile == "" {
		c.log = pretty
		return nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(true),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	c.log = logger.Multi(pretty, file)
	return nil
}

// sendAndStream sends the session history to the gateway and streams the
// response to stdout. Returns the full assistant response text.
func (c *chatCommander) sendAndStream() (string, error) {
	body, err := c.formatRequest()
	if err != nil {
		return "", err
	}

	c.log.Debug("sending chat request",
		"gateway_target", c.gatewayTarget,
		"model", c.model,
		"message_count", len(c.session.Messages),
	)

	url := strings.TrimRight(c.gatewayTarget, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.session.ConversationID != "" {
		httpReq.Header.Set(header.ConversationIDHeader, c.session.ConversationID)
	}

	client := &http.Client{
		// LLM responses can be slow
		Timeout: 5 * time.Minute,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	// The gateway threads turns by conversation; adopt its id on the first
	// exchange so the follow-ups land in the same transcript.
	if id := resp.Header.Get(header.ConversationIDHeader); id != "" {
		c.session.ConversationID = id
	}

	fmt.Print(assistantPrompt)

	var full strings.Builder
	it := c.decoder.Stream(context.Background(), resp.Body)
	defer it.Close()

	for {
		ev, err := it.Next()
		if err != nil {
			return full.String(), fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			break
		}

		switch e := ev.(type) {
		case stream.TextFragment:
			if !c.render {
				fmt.Print(e.Text)
			}
			full.WriteString(e.Text)
		case stream.ToolCall:
			fmt.Printf("\n  %s\n", toolCallStyle.Render(fmt.Sprintf("[tool call] %s(%v)", e.Name, e.Arguments)))
		}
	}

	if c.render {
		rendered, err := cliui.RenderMarkdown(full.String())
		if err != nil {
			// Fall back to the raw text rather than losing the answer.
			fmt.Print(full.String())
		} else {
			fmt.Print(rendered)
		}
	}

	return full.String(), nil
}

// formatRequest encodes the session history as an OpenAI chat-completions
// request, the gateway's native surface.
func (c *chatCommander) formatRequest() ([]byte, error) {
	messages := make([]llm.Message, 0, len(c.session.Messages))
	for _, msg := range c.session.Messages {
		messages = append(messages, llm.NewTextMessage(msg.Role, msg.Content))
	}

	on := true
	req := &llm.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &on,
	}

	prov, err := provider.New(provider.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("creating openai provider: %w", err)
	}

	body, err := prov.FormatRequest(req)
	if err != nil {
		return nil, fmt.Errorf("formatting request: %w", err)
	}
	return body, nil
}
