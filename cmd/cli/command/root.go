package command

// root.go defines the root command for the bookswap CLI.
// Global flags and configuration are set up here.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"bookswap/cmd/cli/authentication"
	"bookswap/internal/chat"
	"bookswap/internal/chat/httptransport"
	"bookswap/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	apiURL  string // Global flag for API server URL
	cfgFile string // config file path

	clientCfg config.ClientConfig
	logger    *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookswap",
	Short: "bookswap - BookSwap Command Line Interface",
	Long: `bookswap talks to the BookSwap chat backend. Use it to:
- Sign up and log in
- List your conversations with an unread badge
- Open a conversation and chat live
- Start a conversation about a book

Use "bookswap command -h" to see all available commands.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default "+config.DefaultClientConfig().APIURL+")")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ~/.bookswap/config.yaml)")
	rootCmd.SilenceErrors = true
}

// loadConfig layers defaults, the YAML file, the environment and finally --api.
func loadConfig(cmd *cobra.Command, _ []string) error {
	path, explicit := cfgFile, cfgFile != ""
	if !explicit {
		path = config.DefaultClientConfigPath()
	}
	cfg, err := config.LoadClientConfig(path, explicit)
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	clientCfg = cfg
	logger = config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}

// newClient builds an HTTP transport; with auth it reads the token from the
// keyring. onUnauthorized, if set, runs on every 401.
func newClient(withAuth bool, onUnauthorized func(context.Context, error)) *httptransport.Client {
	cfg := httptransport.Config{
		BaseURL:        clientCfg.APIURL,
		Timeout:        clientCfg.HTTPTimeout,
		RateLimit:      clientCfg.RateLimit,
		RateBurst:      clientCfg.RateBurst,
		Logger:         logger,
		OnUnauthorized: onUnauthorized,
	}
	if withAuth {
		cfg.Tokens = authentication.KeyringTokens{}
	}
	return httptransport.New(cfg)
}

// newSession opens a chat session for the stored credentials. onInvalidated,
// if set, runs after the session is rejected by the backend.
func newSession(cmd *cobra.Command, onInvalidated func()) (*chat.Session, error) {
	creds, err := authentication.GetTokens()
	if err != nil {
		return nil, err
	}
	if creds.APIURL != "" && creds.APIURL != clientCfg.APIURL {
		logger.Warn("api_url_differs_from_login", "login_api", creds.APIURL, "api", clientCfg.APIURL)
	}

	// the client is built before the session it reports 401s to
	var session *chat.Session
	client := newClient(true, func(ctx context.Context, err error) {
		if session != nil {
			session.HandleUnauthorized(ctx, err)
		}
	})
	session = chat.NewSession(client, chat.Identity{
		UserID:   creds.UserID,
		Username: creds.Username,
	}, chat.SessionConfig{
		MessagePollInterval:  clientCfg.MessagePollInterval,
		RoomListPollInterval: clientCfg.RoomListPollInterval,
		CallTimeout:          clientCfg.HTTPTimeout,
		Logger:               logger,
		OnInvalidated: func(err error) {
			if err := authentication.DeleteTokens(); err != nil {
				logger.Warn("credentials_delete_failed", "error", err)
			}
			color.New(color.FgRed).Fprintln(cmd.ErrOrStderr(),
				"Session expired, run 'bookswap auth login' again.")
			if onInvalidated != nil {
				onInvalidated()
			}
		},
	})
	return session, nil
}

// describeError turns transport errors into one line for the terminal.
func describeError(err error) error {
	var apiErr *chat.APIError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authentication.ErrNotLoggedIn):
		return err
	case errors.Is(err, chat.ErrAuth):
		return fmt.Errorf("not authorized, run 'bookswap auth login': %w", err)
	case errors.Is(err, chat.ErrNetwork):
		return fmt.Errorf("cannot reach %s: %w", clientCfg.APIURL, err)
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return errors.New(apiErr.Message)
	}
	return err
}
