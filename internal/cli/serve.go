package cli

import (
	"review-proxy/internal/config"
	"review-proxy/internal/initapp"
	"review-proxy/internal/logging"
	"review-proxy/internal/utils"

	"github.com/spf13/cobra"
)

func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}
}

func runServe(cmd *cobra.Command, version string) error {
	configPath, _ := cmd.Flags().GetString("config")

	// 读取配置前还没有日志配置，先用默认级别
	bootLogger := newLogger(cmd, "", "")
	cm, err := config.Init(configPath, logging.Component(bootLogger, "config"))
	if err != nil {
		return err
	}
	cfg := cm.GetConfig()
	logger := newLogger(cmd, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := utils.ShutdownContext(cmd.Context())
	defer stop()

	app, err := initapp.New(ctx, cm, version, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	utils.OnReload(ctx, func() {
		logger.Info().Msg("SIGHUP received, reloading config")
		cm.ReloadConfig()
	})

	return app.Run(ctx)
}
