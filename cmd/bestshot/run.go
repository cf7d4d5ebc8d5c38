package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"go-best-shot/internal/container"
	"go-best-shot/internal/effects"
	"go-best-shot/internal/service"
)

var (
	runMode   string
	runDryRun bool
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve every duplicate group and apply effects",
	Long: `Resolve every duplicate group from the configured group source.

For each group the highest scoring asset becomes the winner. The effects mode
then decides what happens in the photo library:
  favorite  favorite the winner, unfavorite the alternates
  hide      archive the alternates
  delete    move the alternates to the trash
  albums    add winners and alternates to two albums
  none      only report

Groups where no asset could be scored are never hidden or deleted while
scoring.skip_degraded is set.

Example:
  bestshot run
  bestshot run --mode delete --dry-run=false`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Effects mode (favorite, hide, delete, albums, none)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", true, "Plan effects without touching the library")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full run summary as JSON")
	rootCmd.AddCommand(runCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := container.NewContainer(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer c.Close()

	opts := service.RunOptions{Mode: effects.Mode(runMode)}
	if cmd.Flags().Changed("dry-run") {
		opts.DryRun = &runDryRun
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := c.Service().Run(ctx, opts)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(cmd, summary)
	return nil
}

func printSummary(cmd *cobra.Command, s *service.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (mode %s, dry run %t)\n", s.RunID, s.Mode, s.DryRun)
	fmt.Fprintf(out, "Groups: %d, degraded: %d\n\n", s.Groups, s.Degraded)

	for i, res := range s.Results {
		fmt.Fprintf(out, "%s\n", res.GroupID)
		for _, score := range res.Scores {
			marker := " "
			if score.AssetID == res.Winner {
				marker = "*"
			}
			reason := ""
			if score.Failed() {
				reason = " (" + string(score.Breakdown.Reason) + ")"
			}
			fmt.Fprintf(out, "  %s %-40s %.4f%s\n", marker, score.AssetID, score.Total, reason)
		}
		if i < len(s.Plans) && s.Plans[i].Skipped != "" {
			fmt.Fprintf(out, "  effects skipped: %s\n", s.Plans[i].Skipped)
		}
	}

	fmt.Fprintf(out, "\nActions applied: %d, planned only: %d, failed: %d\n",
		s.Report.Applied, s.Report.DryRun, s.Report.Failed)
}
