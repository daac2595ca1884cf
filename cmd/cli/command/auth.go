package command

import (
	"context"
	"fmt"

	"bookswap/cmd/cli/authentication"
	"bookswap/cmd/cli/command/state"
	"bookswap/pkg/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// auth.go handles account commands: signup, login, logout and whoami.

// authCmd represents the auth command for authentication related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Authenticate with the BookSwap API server. Supports signup, login, logout and whoami.`,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a BookSwap account and log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req models.SignupRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Email, _ = cmd.Flags().GetString("email")
		req.City, _ = cmd.Flags().GetString("city")

		resp, err := newClient(false, nil).Signup(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("signup failed: %w", describeError(err))
		}
		if err := saveLogin(resp); err != nil {
			return err
		}

		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Welcome, %s! You are logged in.\n", resp.User.Username)
		fmt.Fprintf(cmd.OutOrStdout(), "UserID: %s\n", resp.User.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to your BookSwap account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req models.LoginRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")

		resp, err := newClient(false, nil).Login(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("login failed: %w", describeError(err))
		}
		if err := saveLogin(resp); err != nil {
			return err
		}

		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Successfully logged in!")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from your BookSwap account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authentication.DeleteTokens(); err != nil {
			return fmt.Errorf("could not clear credentials: %w", err)
		}
		if err := state.ClearProfile(); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Successfully logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := authentication.GetTokens(); err != nil {
			return err
		}
		user, err := newClient(true, forgetCredentials).Me(cmd.Context())
		if err != nil {
			return describeError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", color.CyanString(user.Username), user.ID)
		if user.City != "" {
			fmt.Fprintf(out, "City: %s\n", user.City)
		}
		fmt.Fprintf(out, "API:  %s\n", clientCfg.APIURL)
		return nil
	},
}

// forgetCredentials drops the stored token after the backend rejected it.
func forgetCredentials(context.Context, error) {
	if err := authentication.DeleteTokens(); err != nil {
		logger.Warn("credentials_delete_failed", "error", err)
	}
}

// saveLogin puts the token in the keyring and caches the profile on disk.
func saveLogin(resp *models.AuthResponse) error {
	creds := &authentication.StoredCredentials{
		AccessToken: resp.AccessToken,
		UserID:      resp.User.ID,
		Username:    resp.User.Username,
		APIURL:      clientCfg.APIURL,
	}
	if err := authentication.StoreTokens(creds); err != nil {
		return fmt.Errorf("could not store credentials in keyring: %w", err)
	}
	if err := state.SaveProfile(&state.Profile{
		UserID:   resp.User.ID,
		Username: resp.User.Username,
		City:     resp.User.City,
		APIURL:   clientCfg.APIURL,
	}); err != nil {
		logger.Warn("profile_save_failed", "error", err)
	}
	return nil
}

func init() {
	authCmd.AddCommand(signupCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(authCmd)

	signupCmd.Flags().StringP("username", "u", "", "Username for the new account")
	signupCmd.Flags().StringP("password", "p", "", fmt.Sprintf("Password (at least %d characters)", models.MinPasswordLength))
	signupCmd.Flags().StringP("email", "e", "", "Email address (optional)")
	signupCmd.Flags().String("city", "", "City, shown to swap partners (optional)")
	signupCmd.MarkFlagRequired("username")
	signupCmd.MarkFlagRequired("password")

	loginCmd.Flags().StringP("username", "u", "", "Username for the account")
	loginCmd.Flags().StringP("password", "p", "", "Password for the account")
	loginCmd.MarkFlagRequired("username")
	loginCmd.MarkFlagRequired("password")
}
