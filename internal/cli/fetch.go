package cli

import (
	"encoding/json"
	"fmt"
	"review-proxy/internal/config"
	"review-proxy/internal/logging"
	"review-proxy/internal/upstream"
	"strings"

	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [placeId]",
		Short: "Fetch reviews once from the scraping service and print them as JSON",
		Example: `  # Fetch the configured default place
  review-proxy fetch

  # Fetch a specific place and print a summary
  review-proxy fetch ChIJN1t_tDeuEmsRUsoyG83frY4 --summary`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFetch,
	}
	cmd.Flags().Bool("summary", false, "print count and average rating instead of the raw reviews")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	summary, _ := cmd.Flags().GetBool("summary")

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	logger := newLogger(cmd, "warn", "console")
	cm, err := config.NewConfigManager(configPath, logging.Component(logger, "config"))
	if err != nil {
		return err
	}
	cfg := cm.GetConfig()

	placeID := cfg.Reviews.DefaultPlaceID
	if len(args) == 1 {
		placeID = args[0]
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return fmt.Errorf("placeId is required (argument or DEFAULT_PLACE_ID)")
	}

	client := upstream.NewClient(cfg.UpstreamClientConfig(), logging.Component(logger, "upstream"))
	items, err := client.Fetch(cmd.Context(), placeID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if summary {
		return enc.Encode(upstream.Summarize(items))
	}
	return enc.Encode(items)
}
