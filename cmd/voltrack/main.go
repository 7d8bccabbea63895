package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voltrack/internal/config"
	"voltrack/internal/logging"
	"voltrack/internal/output"
	"voltrack/internal/version"
)

var (
	configPath   string
	outputFormat string
	logLevel     string

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voltrack",
	Short: "voltrack - volume identity and tracking",
	Long: `voltrack detects the storage volumes mounted on this machine, gives each
one a stable fingerprint, and tracks selected volumes in a library so they
are recognized again after remounts and reboots.`,
	Version:       version.Get().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		logging.Configure(loaded.Log.Level, loaded.Log.Format)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $VOLTRACK_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, yaml, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(sameStorageCmd)
	rootCmd.AddCommand(copyStrategyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if output.Format(outputFormat) == output.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		}
		return printValue(cmd, info)
	},
}

// printValue writes v in the selected structured format.
func printValue(cmd *cobra.Command, v any) error {
	s, err := output.Encode(output.Format(outputFormat), v)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), s)
	return nil
}
