package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nuchain-network/hardware-miner/log"
	"github.com/nuchain-network/hardware-miner/miner-app/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "hardware-miner",
		Short: "nuChain Hardware Miner",
		Long:  banner + "\n\nA proof relayer that mines nuChain rewards on behalf of registered hardware rigs.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
███╗   ██╗██╗   ██╗ ██████╗██╗  ██╗ █████╗ ██╗███╗   ██╗
████╗  ██║██║   ██║██╔════╝██║  ██║██╔══██╗██║████╗  ██║
██╔██╗ ██║██║   ██║██║     ███████║███████║██║██╔██╗ ██║
██║╚██╗██║██║   ██║██║     ██╔══██║██╔══██║██║██║╚██╗██║
██║ ╚████║╚██████╔╝╚██████╗██║  ██║██║  ██║██║██║ ╚████║
╚═╝  ╚═══╝ ╚═════╝  ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝╚═╝  ╚═══╝

███╗   ███╗██╗███╗   ██╗███████╗██████╗
████╗ ████║██║████╗  ██║██╔════╝██╔══██╗
██╔████╔██║██║██╔██╗ ██║█████╗  ██████╔╝
██║╚██╔╝██║██║██║╚██╗██║██╔══╝  ██╔══██╗
██║ ╚═╝ ██║██║██║ ╚████║███████╗██║  ██║
╚═╝     ╚═╝╚═╝╚═╝  ╚═══╝╚══════╝╚═╝  ╚═╝`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	// Add subcommands
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"miner-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Miner flags
	rootCmd.PersistentFlags().String("event-endpoint", "", "source ledger WebSocket endpoint")
	rootCmd.PersistentFlags().String("prover-url", "", "prover service base URL")
	rootCmd.PersistentFlags().String("ledger-rpc", "", "target ledger JSON-RPC endpoint")
	rootCmd.PersistentFlags().Int("concurrency", 0, "maximum concurrent prover calls")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "miner-app/configs/config.yaml"
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("event_endpoint", cfg.Miner.Monitor.Endpoint).
		Str("ledger_rpc", cfg.Miner.LedgerRPC).
		Int("sources", len(cfg.Miner.Sources)).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("nuChain Hardware Miner\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("event-endpoint").Changed {
		cfg.Miner.Monitor.Endpoint, _ = cmd.Flags().GetString("event-endpoint")
	}
	if cmd.Flag("prover-url").Changed {
		cfg.Miner.Prover.BaseURL, _ = cmd.Flags().GetString("prover-url")
	}
	if cmd.Flag("ledger-rpc").Changed {
		cfg.Miner.LedgerRPC, _ = cmd.Flags().GetString("ledger-rpc")
	}
	if cmd.Flag("concurrency").Changed {
		cfg.Miner.Dispatch.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}

	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
}
