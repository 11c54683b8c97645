package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/api"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/ui"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: "sync",
	Short:   "Manage the backend login",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an API token",
	Long: `Save the bearer token used for backend requests.

The token is read from --token, from a hidden prompt when stdin is a
terminal, or from the first line of stdin otherwise. Unless --no-verify is
given, the token is checked against the backend before it is saved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			var err error
			token, err = readToken()
			if err != nil {
				return err
			}
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}
		if auth.Expired(token, time.Now()) {
			return fmt.Errorf("token has already expired")
		}

		creds := &auth.Credentials{Token: token}
		if noVerify, _ := cmd.Flags().GetBool("no-verify"); !noVerify {
			user, err := verifyToken(cmd.Context(), token)
			if err != nil {
				return err
			}
			creds.UserID, creds.Email = user.ID, user.Email
		}

		store := auth.NewStore(cfg.Auth.CredentialsPath, "")
		if err := store.Save(creds); err != nil {
			return err
		}
		who := creds.Email
		if who == "" {
			who = creds.UserID
		}
		if who != "" {
			fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), who)
		} else {
			fmt.Printf("%s Token saved to %s\n", ui.RenderPass("✓"), store.Path())
		}
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := auth.NewStore(cfg.Auth.CredentialsPath, "")
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Printf("%s Logged out\n", ui.RenderPass("✓"))
		if cfg.Auth.Token != "" {
			fmt.Printf("  %s a token is still set through config or QL_AUTH_TOKEN\n", ui.RenderWarn("⚠"))
		}
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login state",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := auth.NewStore(cfg.Auth.CredentialsPath, cfg.Auth.Token)
		token, err := store.Token()
		type status struct {
			Authenticated bool       `json:"authenticated"`
			Source        string     `json:"source,omitempty"`
			UserID        string     `json:"user_id,omitempty"`
			Email         string     `json:"email,omitempty"`
			ExpiresAt     *time.Time `json:"expires_at,omitempty"`
			Error         string     `json:"error,omitempty"`
		}
		st := status{Authenticated: err == nil}
		if err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
			return err
		}
		if err != nil {
			st.Error = err.Error()
		}
		if cfg.Auth.Token != "" {
			st.Source = "config"
		} else if creds, err := store.Load(); err == nil {
			st.Source = store.Path()
			st.UserID, st.Email = creds.UserID, creds.Email
			if token == "" {
				token = creds.Token
			}
		}
		if exp, ok := auth.Expiry(token); ok {
			st.ExpiresAt = &exp
		}

		if jsonOutput {
			return printJSON(st)
		}
		if !st.Authenticated {
			fmt.Printf("%s Not logged in (%s)\n", ui.RenderWarn("⚠"), st.Error)
			return nil
		}
		fmt.Printf("%s Logged in", ui.RenderPass("✓"))
		if st.Email != "" {
			fmt.Printf(" as %s", st.Email)
		}
		fmt.Printf(" (token from %s)\n", st.Source)
		if st.ExpiresAt != nil {
			fmt.Printf("  expires %s (in %s)\n", st.ExpiresAt.Local().Format("2006-01-02 15:04"), ui.FormatDuration(time.Until(*st.ExpiresAt)))
		}
		return nil
	},
}

func readToken() (string, error) {
	if ui.IsTerminal(os.Stdin) {
		return promptSecret("API token")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	return line, nil
}

// verifyToken asks the backend who the token belongs to.
func verifyToken(ctx context.Context, token string) (*api.User, error) {
	client, err := api.New(cfg.API.BaseURL, auth.Static(token), api.Options{Timeout: cfg.API.Timeout, UserAgent: "ql/" + Version})
	if err != nil {
		return nil, err
	}
	user, err := client.Me(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		return nil, fmt.Errorf("backend rejected the token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify token (use --no-verify to save it anyway): %w", err)
	}
	return user, nil
}

func init() {
	authLoginCmd.Flags().String("token", "", "API token (prompted for when omitted)")
	authLoginCmd.Flags().Bool("no-verify", false, "save the token without contacting the backend")

	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
