package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pagereach/cps-client/internal/client"
)

var (
	// Global flags
	apiURL    string
	tokenPath string
	verbose   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cps",
	Short: "Contact Page Submitter - bulk outreach from the command line",
	Long: `cps drives the Contact Page Submitter backend: upload a CSV of website
URLs, launch an outreach campaign, and watch its progress until the crawler
finishes. Run 'stubd' alongside for a local in-memory backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; OS environment wins either way.
		_ = godotenv.Load()

		if apiURL == "" {
			apiURL = os.Getenv("CPS_API_URL")
		}
		if apiURL == "" {
			apiURL = "http://localhost:8080"
		}

		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// buildClient assembles the authenticated API client with the file-backed
// token store. Session expiry prints a hint instead of the browser's forced
// redirect.
func buildClient() (*client.Client, error) {
	tokens, err := client.NewFileTokenStore(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("setting up token store: %w", err)
	}
	return client.New(client.Config{
		BaseURL: apiURL,
		Tokens:  tokens,
		Logger:  logger,
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "session expired, please run 'cps login' again")
		},
	})
}

func main() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "backend base URL (default $CPS_API_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&tokenPath, "token-file", "", "path of the saved session token (default <config dir>/cps/token)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd, registerCmd, whoamiCmd, logoutCmd)
	rootCmd.AddCommand(campaignsCmd, launchCmd, watchCmd, stopCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
