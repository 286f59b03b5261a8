package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/open-webui/openwebui-cli/internal/api"
)

// AdminCmd creates the admin parent command.
func AdminCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin operations (requires admin role)",
	}

	cmd.AddCommand(adminStatsCmd(opts))
	cmd.AddCommand(adminUsersCmd(opts))

	return cmd
}

func adminStatsCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminStats(cmd.Context(), opts)
		},
	}
}

// runAdminStats queries the stats endpoint, falling back to basic user info
// when the endpoint itself fails server-side. The two failure paths are
// independent: a Server-classified error (missing endpoint, 5xx) triggers
// the fallback, while an Auth-classified error propagates unchanged.
func runAdminStats(ctx context.Context, opts *Options) error {
	render := newRenderer(opts)

	client, err := api.NewClient(opts.clientOptions())
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := fetchStats(ctx, client)
	if err != nil {
		return err
	}

	if render.structured() {
		return render.Emit(stats)
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(stats))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprintf("%v", stats[k])})
	}
	render.Table("Server Statistics", []string{"METRIC", "VALUE"}, rows)
	return nil
}

func fetchStats(ctx context.Context, client *api.Client) (map[string]any, error) {
	data, err := client.Get(ctx, "/api/v1/admin/stats")
	if err == nil {
		var stats map[string]any
		if err := json.Unmarshal(data, &stats); err != nil {
			return nil, fmt.Errorf("failed to parse stats: %w", err)
		}
		return stats, nil
	}

	var cliErr *api.Error
	if !errors.As(err, &cliErr) || cliErr.Kind != api.KindServer {
		return nil, err
	}

	// Stats endpoint unavailable: fall back to the current-user endpoint and
	// enforce the role check explicitly.
	data, err = client.Get(ctx, "/api/v1/auths/")
	if err != nil {
		return nil, err
	}

	var user struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if user.Role != "admin" {
		return nil, api.Authf("admin command requires admin privileges; your current user is %q with role: [%s]",
			user.Name, user.Role)
	}

	return map[string]any{
		"user":   user.Name,
		"role":   user.Role,
		"status": "connected",
	}, nil
}

// adminUser is one row of the user listing. The list arrives either under
// "data" or as a bare array.
type adminUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func adminUsersCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Get(cmd.Context(), "/api/v1/admin/users")
			if err != nil {
				return err
			}

			users, err := extractList[adminUser](data, "data")
			if err != nil {
				return err
			}
			if len(users) == 0 {
				render.Warnf("No users found.")
				return nil
			}

			if render.structured() {
				return render.Emit(users)
			}

			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{valueOr(u.ID, "-"), valueOr(u.Name, "-"), valueOr(u.Email, "-"), valueOr(u.Role, "-")})
			}
			render.Table("Users", []string{"ID", "NAME", "EMAIL", "ROLE"}, rows)
			return nil
		},
	}
}
