package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "fintrack",
		Short: "Personal income and expense tracker",
		Long: `fintrack records income and expense transactions per account, shows
running totals and filtered history, exports PDF reports and keeps every
open browser tab in sync over a websocket feed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file (keys match the environment variables)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "fintrack failed", err)
	}
}

// setup loads .env, the configuration and the process logger.
func setup() (*config.Config, *log.Logger, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cli.SetupLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "fintrack", version)
		},
	}
}
