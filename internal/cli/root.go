package cli

import (
	"review-proxy/internal/constants"
	"review-proxy/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd 创建根命令，不带子命令时等同于 serve
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "review-proxy",
		Short:         "Cached proxy for place reviews",
		Long:          "review-proxy serves place reviews from a refreshable cache in front of a review-scraping service.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}

	cmd.PersistentFlags().StringP("config", "c", constants.DefaultConfigPath, "config file (.json, .yaml or .yml)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(newServeCmd(version), newFetchCmd(), newVersionCmd(version))
	return cmd
}

// newLogger 按配置创建日志器，--debug 优先
func newLogger(cmd *cobra.Command, level, format string) zerolog.Logger {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	return logging.New(level, format)
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}
