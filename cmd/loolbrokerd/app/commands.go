// Package app wires up loolbrokerd's cobra command tree, following the
// teacher's root-command shape (persistent flags bound through viper,
// PersistentPreRun initializing the logger, usage silenced on error).
package app

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/loolbrokerd/pkg/logger"
)

// NewRootCmd builds loolbrokerd's root command.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "loolbrokerd",
		Short: "Session-brokering front-end for a collaborative document-editing server",
		Long: `loolbrokerd terminates client connections, multiplexes concurrent editing
sessions onto isolated per-document worker processes spawned by a forking
supervisor, and exposes a format-conversion endpoint.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if v.GetBool("unstructured-logs") {
				_ = os.Setenv(logger.EnvUnstructuredLogs, "true")
			}
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("unstructured-logs", false, "log in human-readable console form instead of JSON")
	if err := v.BindPFlag("unstructured-logs", rootCmd.PersistentFlags().Lookup("unstructured-logs")); err != nil {
		logger.Errorf("error binding unstructured-logs flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
