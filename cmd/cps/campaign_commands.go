package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagereach/cps-client/internal/ingest"
	"github.com/pagereach/cps-client/internal/model"
	"github.com/pagereach/cps-client/internal/service"
)

var (
	launchFile    string
	launchName    string
	launchMessage string
	launchProxy   string
	haltOnCaptcha bool
	watchAfter    bool

	watchInterval time.Duration
	exportOut     string
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "List your campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		campaigns, err := c.ListCampaigns(cmd.Context())
		if err != nil {
			return err
		}
		if len(campaigns) == 0 {
			fmt.Println("No campaigns yet")
			return nil
		}
		fmt.Printf("%-38s %-10s %7s %7s %6s  %s\n", "ID", "STATUS", "TOTAL", "DONE", "FAIL", "NAME")
		for _, campaign := range campaigns {
			fmt.Printf("%-38s %-10s %7d %7d %6d  %s\n",
				campaign.ID,
				model.ParseStatus(campaign.Status),
				campaign.TotalURLs,
				campaign.ProcessedCount,
				campaign.FailCount,
				campaign.Name)
		}
		return nil
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Validate a CSV, create a campaign, and start submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := ingest.IngestFile(launchFile)
		if err != nil {
			return err
		}
		printPreview(parsed)

		c, err := buildClient()
		if err != nil {
			return err
		}
		launcher := &service.Launcher{API: c, Log: logger}
		result, err := launcher.Launch(cmd.Context(), service.LaunchRequest{
			CSV:           parsed,
			Name:          launchName,
			Message:       launchMessage,
			Proxy:         launchProxy,
			HaltOnCaptcha: haltOnCaptcha,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Campaign started: %s (%d URLs)\n", result.CampaignID, result.TotalURLs)
		if result.CreatedID != result.CampaignID {
			// The backend reports progress under the start-call id, not the
			// draft id. Keep both visible until the contract is clarified.
			fmt.Printf("  draft id: %s (superseded by run id above)\n", result.CreatedID)
		}

		if watchAfter {
			return watchCampaign(cmd.Context(), c, result.CampaignID)
		}
		fmt.Printf("Run 'cps watch %s' to follow progress\n", result.CampaignID)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <campaign-id>",
	Short: "Poll a campaign's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		return watchCampaign(cmd.Context(), c, args[0])
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <campaign-id>",
	Short: "Stop a running campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		if err := c.StopCampaign(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Stop requested")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <campaign-id>",
	Short: "Download the campaign's CSV report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if err := c.ExportReport(cmd.Context(), args[0], out); err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Printf("Report written to %s\n", exportOut)
		}
		return nil
	},
}

// watchCampaign runs the poller, printing one line per snapshot. Ctrl-C
// cancels the context and tears the poller down cleanly.
func watchCampaign(ctx context.Context, api service.StatusFetcher, campaignID string) error {
	poller := &service.Poller{
		API:      api,
		Interval: watchInterval,
		Log:      logger,
		OnSnapshot: func(snap model.ProgressSnapshot) {
			fmt.Printf("\r%d/%d processed (%.0f%%), %d ok, %d failed   ",
				snap.Processed, snap.Total, snap.ProgressPercent, snap.Successful, snap.Failed)
		},
		OnCompleted: func(snap model.ProgressSnapshot) {
			fmt.Printf("\nCampaign completed: %d ok, %d failed out of %d\n",
				snap.Successful, snap.Failed, snap.Total)
		},
		OnTerminal: func(snap model.ProgressSnapshot) {
			fmt.Printf("\nCampaign ended with status %s\n", model.ParseStatus(snap.Status))
		},
	}
	err := poller.Run(ctx, campaignID)
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nStopped watching")
		return nil
	}
	return err
}

func printPreview(parsed *model.ParsedCSV) {
	fmt.Printf("Parsed %s: %d rows, URL column %q\n",
		parsed.FileName, parsed.TotalRows, parsed.URLColumnName)
	if len(parsed.PreviewRows) == 0 {
		return
	}
	fmt.Println("  " + strings.Join(parsed.Headers, " | "))
	for _, row := range parsed.PreviewRows {
		fmt.Println("  " + strings.Join(row, " | "))
	}
	if parsed.TotalRows > len(parsed.PreviewRows) {
		fmt.Printf("  ... and %d more rows\n", parsed.TotalRows-len(parsed.PreviewRows))
	}
}

func init() {
	launchCmd.Flags().StringVarP(&launchFile, "file", "f", "", "CSV file of website URLs")
	launchCmd.Flags().StringVarP(&launchName, "name", "n", "", "campaign name")
	launchCmd.Flags().StringVarP(&launchMessage, "message", "m", "", "outreach message template (defaults to the standard template)")
	launchCmd.Flags().StringVar(&launchProxy, "proxy", "", "proxy to crawl through")
	launchCmd.Flags().BoolVar(&haltOnCaptcha, "halt-on-captcha", false, "stop instead of solving CAPTCHAs")
	launchCmd.Flags().BoolVarP(&watchAfter, "watch", "w", false, "follow progress after launching")
	_ = launchCmd.MarkFlagRequired("file")
	_ = launchCmd.MarkFlagRequired("name")

	watchCmd.Flags().DurationVar(&watchInterval, "interval", service.DefaultPollInterval, "polling interval")
	launchCmd.Flags().DurationVar(&watchInterval, "interval", service.DefaultPollInterval, "polling interval when --watch is set")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write the report to a file instead of stdout")
}
