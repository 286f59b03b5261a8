package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-webui/openwebui-cli/internal/api"
)

// ModelsCmd creates the models parent command.
func ModelsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Model management",
	}

	cmd.AddCommand(modelsListCmd(opts))
	cmd.AddCommand(modelsInfoCmd(opts))
	cmd.AddCommand(modelsPullCmd(opts))
	cmd.AddCommand(modelsDeleteCmd(opts))

	return cmd
}

// modelInfo is one entry of GET /api/models. Field names vary by backend, so
// several carry fallbacks resolved in accessors below.
type modelInfo struct {
	ID            string          `json:"id"`
	Model         string          `json:"model"`
	Name          string          `json:"name"`
	OwnedBy       string          `json:"owned_by"`
	Provider      string          `json:"provider"`
	Parameters    json.RawMessage `json:"parameters"`
	ContextLength int             `json:"context_length"`
}

func (m modelInfo) identifier() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Model != "" {
		return m.Model
	}
	return "Unknown"
}

func (m modelInfo) displayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.identifier()
}

func (m modelInfo) provider() string {
	if m.OwnedBy != "" {
		return m.OwnedBy
	}
	if m.Provider != "" {
		return m.Provider
	}
	return "-"
}

// extractModels pulls the model list out of the response. The list lives
// under "data" or "models" depending on the upstream; rules applied in that
// order.
func extractModels(data json.RawMessage) ([]modelInfo, error) {
	var envelope struct {
		Data   []modelInfo `json:"data"`
		Models []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	if envelope.Data != nil {
		return envelope.Data, nil
	}
	return envelope.Models, nil
}

func modelsListCmd(opts *Options) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Get(cmd.Context(), "/api/models")
			if err != nil {
				return err
			}

			models, err := extractModels(data)
			if err != nil {
				return err
			}

			if provider != "" {
				filtered := models[:0]
				for _, m := range models {
					if strings.Contains(strings.ToLower(m.provider()), strings.ToLower(provider)) {
						filtered = append(filtered, m)
					}
				}
				models = filtered
			}

			if render.structured() {
				return render.Emit(models)
			}

			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, []string{m.identifier(), m.displayName(), m.provider()})
			}
			render.Table("Available Models", []string{"ID", "NAME", "PROVIDER"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Filter by provider")

	return cmd
}

func modelsInfoCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <model-id>",
		Short: "Show model details",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			modelID := args[0]

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Get(cmd.Context(), "/api/models/"+modelID)
			if err != nil {
				return err
			}

			if render.structured() {
				var full any
				if err := json.Unmarshal(data, &full); err != nil {
					return fmt.Errorf("failed to parse model info: %w", err)
				}
				return render.Emit(full)
			}

			var m modelInfo
			if err := json.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("failed to parse model info: %w", err)
			}
			if m.ID == "" {
				m.ID = modelID
			}
			render.Fieldf("Model", "%s", m.identifier())
			render.Fieldf("Name", "%s", valueOr(m.Name, "-"))
			render.Fieldf("Provider", "%s", m.provider())
			if len(m.Parameters) > 0 && string(m.Parameters) != "null" {
				render.Fieldf("Parameters", "%s", string(m.Parameters))
			}
			if m.ContextLength > 0 {
				render.Fieldf("Context Length", "%d", m.ContextLength)
			}
			return nil
		},
	}
}

func modelsPullCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull <model-name>",
		Short: "Pull/download a model from registry",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			modelName := args[0]

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			if !force {
				// An existing model means nothing to do; any lookup failure
				// just means we proceed with the pull.
				if _, err := client.Get(cmd.Context(), "/api/models/"+modelName); err == nil {
					render.Warnf("Model %q already exists. Use --force to re-pull.", modelName)
					return nil
				}
			}

			render.Infof("Pulling model: %s...", modelName)

			data, err := client.Post(cmd.Context(), "/api/models/pull", map[string]string{"name": modelName})
			if err != nil {
				return err
			}

			var result struct {
				Status  string `json:"status"`
				Message string `json:"message"`
				Error   string `json:"error"`
			}
			_ = json.Unmarshal(data, &result)

			if result.Status == "" || result.Status == "success" {
				render.Successf("Successfully pulled model: %s", modelName)
				return nil
			}
			msg := result.Message
			if msg == "" {
				msg = result.Error
			}
			if msg == "" {
				msg = result.Status
			}
			render.Warnf("Pull completed with status: %s", msg)
			return nil
		},
	}

	// No shorthand: "f" belongs to the global --format flag.
	cmd.Flags().BoolVar(&force, "force", false, "Re-pull existing models")

	return cmd
}

func modelsDeleteCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <model-name>",
		Short: "Delete a model from the system",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			modelName := args[0]

			if !force && !confirm(fmt.Sprintf("Delete model %q?", modelName)) {
				render.Warnf("Delete cancelled.")
				return nil
			}

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.Delete(cmd.Context(), "/api/models/"+modelName); err != nil {
				return err
			}
			render.Successf("Successfully deleted model: %s", modelName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation")

	return cmd
}
