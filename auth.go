package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/credstore"
)

func newLoginCmd() *cobra.Command {
	var flagToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a remote access token for the active profile",
		Long: `Save the long-lived access token (WebDAV app password, or Dropbox-style
API token) used to reach the active profile's remote. Pass it with --token,
or omit the flag to be prompted and read it from stdin without echoing it
to your shell history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context(), flagToken)
		},
	}

	cmd.Flags().StringVar(&flagToken, "token", "", "access token (prompted if omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved access token for the active profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogout(cmd.Context())
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show which profile and remote the saved token applies to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd.Context())
		},
	}
}

func runLogin(ctx context.Context, token string) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	if token == "" {
		var err error

		token, err = readTokenFromStdin()
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
	}

	if token == "" {
		return fmt.Errorf("no token provided")
	}

	credPath := config.ProfileCredentialPath(profile.Name)

	meta := map[string]string{
		"remote_kind": profile.Remote.Kind,
		"endpoint":    profile.Remote.Endpoint,
	}

	if err := credstore.Save(credPath, &oauth2.Token{AccessToken: token}, meta); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	cc.Statusf("Saved credentials for profile %q (%s).\n", profile.Name, profile.Remote.Kind)

	return nil
}

// readTokenFromStdin reads a single line without echoing a prompt to
// stdout beyond the instruction itself — tokens are secrets and should
// not linger in shell history the way a --token flag value would.
func readTokenFromStdin() (string, error) {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprint(os.Stderr, "Paste access token: ")
	}

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func runLogout(ctx context.Context) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	credPath := config.ProfileCredentialPath(profile.Name)

	if err := credstore.Delete(credPath); err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}

	cc.Statusf("Removed credentials for profile %q.\n", profile.Name)

	return nil
}

type whoamiOutput struct {
	Profile    string `json:"profile"`
	RemoteKind string `json:"remote_kind"`
	Endpoint   string `json:"endpoint,omitempty"`
	LoggedIn   bool   `json:"logged_in"`
}

func runWhoami(ctx context.Context) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	credPath := config.ProfileCredentialPath(profile.Name)

	out := whoamiOutput{
		Profile:    profile.Name,
		RemoteKind: profile.Remote.Kind,
		Endpoint:   profile.Remote.Endpoint,
		LoggedIn:   credstore.Exists(credPath),
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if !out.LoggedIn {
		cc.Statusf("Profile %q: not logged in.\n", out.Profile)
		return nil
	}

	cc.Statusf("Profile %q: logged in to %s", out.Profile, out.RemoteKind)

	if out.Endpoint != "" {
		cc.Statusf(" (%s)", out.Endpoint)
	}

	cc.Statusf("\n")

	return nil
}
