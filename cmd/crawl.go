package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCrawlCmd creates the 'crawl' subcommand: a single immediate crawl of
// one source, outside the scheduled loop.
func newCrawlCmd() *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a single source immediately",
		Long: `Runs one crawl attempt for the given source right now, recording the
outcome and updating the source's schedule exactly as the loop would.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Scheduler.CrawlOne(cmd.Context(), sourceID); err != nil {
				return fmt.Errorf("crawl source: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "id of the source to crawl")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}
