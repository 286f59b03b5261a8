package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/open-webui/openwebui-cli/internal/api"
	"github.com/open-webui/openwebui-cli/internal/config"
)

// ChatCmd creates the chat parent command.
func ChatCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat operations",
	}

	cmd.AddCommand(chatSendCmd(opts))

	return cmd
}

// chatMessage is one turn of a conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatFileRef attaches a RAG file or collection to a completion request.
type chatFileRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// chatRequest is the body of POST /api/v1/chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Files       []chatFileRef `json:"files,omitempty"`
}

// chatCompletion is a non-streaming completion response.
type chatCompletion struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatSendFlags struct {
	model       string
	prompt      string
	system      string
	historyFile string
	files       []string
	collections []string
	noStream    bool
	temperature float64
	maxTokens   int
	jsonOutput  bool
}

func chatSendCmd(opts *Options) *cobra.Command {
	var flags chatSendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a chat message",
		Long: `Send a chat message to a model.

The prompt comes from --prompt or from piped stdin. Responses stream by
default; use --no-stream to wait for the complete response.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tempSet := cmd.Flags().Changed("temperature")
			maxSet := cmd.Flags().Changed("max-tokens")
			return runChatSend(cmd.Context(), opts, flags, tempSet, maxSet)
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Model to use (falls back to defaults.model)")
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "User prompt (or use stdin)")
	cmd.Flags().StringVarP(&flags.system, "system", "s", "", "System prompt")
	cmd.Flags().StringVar(&flags.historyFile, "history-file", "", "Load conversation history from JSON file")
	cmd.Flags().StringArrayVar(&flags.files, "file", nil, "RAG file ID(s) for context")
	cmd.Flags().StringArrayVar(&flags.collections, "collection", nil, "RAG collection ID(s) for context")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "Wait for complete response")
	cmd.Flags().Float64VarP(&flags.temperature, "temperature", "T", 0, "Temperature (0.0-2.0)")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, "Max response tokens")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runChatSend(ctx context.Context, opts *Options, flags chatSendFlags, tempSet, maxSet bool) error {
	render := newRenderer(opts)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	model := flags.model
	if model == "" {
		model = cfg.Defaults.Model
	}
	if model == "" {
		return api.Usagef("model required: use -m or set defaults.model in the config")
	}

	prompt := flags.prompt
	if prompt == "" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return api.Usagef("prompt required: use -p or pipe input")
		}
		piped, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(piped))
		if prompt == "" {
			return api.Usagef("prompt required: use -p or pipe input")
		}
	}

	messages, err := loadHistory(flags.historyFile)
	if err != nil {
		return err
	}

	// A system prompt is inserted first only when the history has none.
	if flags.system != "" && !hasSystemMessage(messages) {
		messages = append([]chatMessage{{Role: "system", Content: flags.system}}, messages...)
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   !flags.noStream && cfg.Defaults.Stream,
	}
	if tempSet {
		body.Temperature = &flags.temperature
	}
	if maxSet {
		body.MaxTokens = &flags.maxTokens
	}
	for _, f := range flags.files {
		body.Files = append(body.Files, chatFileRef{Type: "file", ID: f})
	}
	for _, c := range flags.collections {
		body.Files = append(body.Files, chatFileRef{Type: "collection", ID: c})
	}

	client, err := api.NewClient(opts.clientOptions())
	if err != nil {
		return err
	}
	defer client.Close()

	if body.Stream {
		return streamChat(ctx, client, render, body, flags.jsonOutput)
	}
	return completeChat(ctx, client, render, body, flags.jsonOutput)
}

func streamChat(ctx context.Context, client *api.Client, render *renderer, body chatRequest, jsonOutput bool) error {
	// Ctrl-C during streaming is a normal early termination, not a failure.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	resp, err := client.PostStream(ctx, "/api/v1/chat/completions", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	result, err := api.ConsumeStream(ctx, resp.Body, os.Stdout)
	if err != nil {
		return err
	}

	if result.Interrupted {
		render.Warnf("Stream interrupted by user")
		if jsonOutput {
			return render.Emit(map[string]any{"content": result.Content, "interrupted": true})
		}
		return nil
	}
	if jsonOutput {
		return render.Emit(map[string]any{"content": result.Content})
	}
	return nil
}

func completeChat(ctx context.Context, client *api.Client, render *renderer, body chatRequest, jsonOutput bool) error {
	data, err := client.Post(ctx, "/api/v1/chat/completions", body)
	if err != nil {
		return err
	}

	if jsonOutput || render.structured() {
		var full any
		if err := json.Unmarshal(data, &full); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return render.Emit(full)
	}

	var completion chatCompletion
	if err := json.Unmarshal(data, &completion); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return api.Serverf("response contained no choices")
	}
	fmt.Println(completion.Choices[0].Message.Content)
	return nil
}

// loadHistory reads a conversation history file holding either a bare array
// of messages or an object with a "messages" key.
func loadHistory(path string) ([]chatMessage, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, api.Usagef("history file not found: %s", path)
		}
		return nil, api.Usagef("failed to read history file: %v", err)
	}

	var direct []chatMessage
	if err := json.Unmarshal(data, &direct); err == nil {
		return direct, nil
	}

	var wrapped struct {
		Messages []chatMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Messages != nil {
		return wrapped.Messages, nil
	}

	return nil, api.Usagef("history file must contain an array of messages or an object with a 'messages' key")
}

func hasSystemMessage(messages []chatMessage) bool {
	for _, msg := range messages {
		if msg.Role == "system" {
			return true
		}
	}
	return false
}
