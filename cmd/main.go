/**
 * @description
 * This is the main entry point for the claim-service. The root command loads the
 * configuration once; subcommands serve the API and event consumer, run migrations,
 * or run the stale claim job a single time.
 *
 * @dependencies
 * - github.com/spf13/cobra: Command line interface.
 * - github.com/joho/godotenv: Loads a local .env file into the environment.
 * - internal/config: Service configuration.
 */

package main

import (
	"log/slog"
	"os"

	"github.com/fundrequest/claim-service/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "claim-service",
	Short: "FundRequest claim-service",
	Long: `The claim-service lets the solver of a funded issue claim its bounty, records the
payouts confirmed on chain and serves the claims of a request.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is normal outside local development.
		_ = godotenv.Load()

		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "claim-service")
	slog.SetDefault(logger)

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", ".", "directory holding an optional .env file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(flagStaleClaimsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
}
