package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:     "cctvbot",
		Short:   "CCTV violation monitor with WhatsApp/Telegram alerts",
		Version: version,
		Long: `cctvbot polls the violation record store and alerts every subscribed
chat about newly detected violations. Without a subcommand it runs the service.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")

	root.AddCommand(
		runCmd(&cfgPath),
		statusCmd(&cfgPath),
		subscribersCmd(&cfgPath),
		seedDefaultsCmd(&cfgPath),
		demoCmd(&cfgPath),
		resolveCmd(&cfgPath),
		importCmd(&cfgPath),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "cctvbot", version)
		},
	}
}
