package cli

import (
	"context"
	"fmt"
	"os"

	"devicegateway/config"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

const version = "dev"

var (
	configPath string
	cfg        *config.Config
	logCloser  func()
)

// rootCmd runs the gateway when no subcommand is given
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "HTTP and WebSocket gateway for a remote Android device",
	Long:  `Keeps an ADB session to one Android device alive and exposes screenshots, input injection and a live frame stream over HTTP.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logCloser = setupLogging(cfg.Logging, cmd.Name() == "serve" || cmd == cmd.Root())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// ExecuteContext runs the root command; cancelling ctx stops the server
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// printJson is a helper function to print JSON responses
func printJson(data any) error {
	out, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
