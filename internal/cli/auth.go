package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/open-webui/openwebui-cli/internal/api"
	"github.com/open-webui/openwebui-cli/internal/config"
	"github.com/open-webui/openwebui-cli/internal/secrets"
)

// AuthCmd creates the auth parent command.
func AuthCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
	}

	cmd.AddCommand(authLoginCmd(opts))
	cmd.AddCommand(authLogoutCmd(opts))
	cmd.AddCommand(authWhoamiCmd(opts))
	cmd.AddCommand(authTokenCmd(opts))
	cmd.AddCommand(authRefreshCmd(opts))

	return cmd
}

// signinResponse is the body of POST /api/v1/auths/signin.
type signinResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func authLoginCmd(opts *Options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to OpenWebUI instance",
		Long:  "Authenticate against the server and store the token in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), opts, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (will prompt if not provided)")

	return cmd
}

func runLogin(ctx context.Context, opts *Options, username, password string) error {
	render := newRenderer(opts)

	if username == "" {
		var err error
		username, err = promptLine("Username or email", "")
		if err != nil {
			return err
		}
	}
	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}

	clientOpts := opts.clientOptions()
	clientOpts.AllowUnauthenticated = true
	client, err := api.NewClient(clientOpts)
	if err != nil {
		return err
	}
	defer client.Close()

	data, err := client.Post(ctx, "/api/v1/auths/signin", map[string]string{
		"email":    username,
		"password": password,
	})
	if err != nil {
		return err
	}

	var signin signinResponse
	if err := json.Unmarshal(data, &signin); err != nil {
		return fmt.Errorf("failed to parse signin response: %w", err)
	}
	if signin.Token == "" {
		return api.Authf("no token received from server")
	}

	if err := secrets.SetToken(client.Profile(), client.BaseURL(), signin.Token); err != nil {
		return err
	}

	name := signin.Name
	if name == "" {
		name = username
	}
	render.Successf("Successfully logged in as %s", name)
	render.Infof("Token saved to system keyring for profile: %s", client.Profile())
	return nil
}

func authLogoutCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and remove stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			uri, profile, err := config.Effective(opts.Profile, opts.URI)
			if err != nil {
				return err
			}
			if err := secrets.DeleteToken(profile, uri); err != nil {
				return err
			}
			render.Successf("Logged out from profile: %s", profile)
			return nil
		},
	}
}

func authWhoamiCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show current user information",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Get(cmd.Context(), "/api/v1/auths/")
			if err != nil {
				return err
			}

			var user struct {
				Name  string `json:"name"`
				Email string `json:"email"`
				Role  string `json:"role"`
			}
			if err := json.Unmarshal(data, &user); err != nil {
				return fmt.Errorf("failed to parse user info: %w", err)
			}

			if render.structured() {
				return render.Emit(user)
			}
			render.Fieldf("User", "%s", valueOr(user.Name, "Unknown"))
			render.Fieldf("Email", "%s", valueOr(user.Email, "Unknown"))
			render.Fieldf("Role", "%s", valueOr(user.Role, "Unknown"))
			return nil
		},
	}
}

func authTokenCmd(opts *Options) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show token information",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			uri, profile, err := config.Effective(opts.Profile, opts.URI)
			if err != nil {
				return err
			}

			stored, err := secrets.GetToken(profile, uri)
			if err != nil {
				if errors.Is(err, secrets.ErrNotFound) {
					render.Warnf("No token found. Run 'openwebui auth login' first.")
					return nil
				}
				return err
			}

			if show {
				render.Fieldf("Token", "%s", stored)
			} else {
				render.Fieldf("Token", "%s", maskToken(stored))
			}
			render.Fieldf("Profile", "%s", profile)
			render.Fieldf("URI", "%s", uri)
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Show full token (careful!)")

	return cmd
}

func authRefreshCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the authentication token",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			client, err := api.NewClient(opts.clientOptions())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Post(cmd.Context(), "/api/v1/auths/refresh", nil)
			if err != nil {
				return err
			}

			var refreshed signinResponse
			if err := json.Unmarshal(data, &refreshed); err != nil {
				return fmt.Errorf("failed to parse refresh response: %w", err)
			}
			if refreshed.Token == "" {
				render.Warnf("No new token received")
				return nil
			}
			if err := secrets.SetToken(client.Profile(), client.BaseURL(), refreshed.Token); err != nil {
				return err
			}
			render.Successf("Token refreshed successfully")
			return nil
		},
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
