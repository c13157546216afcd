package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overseer/internal/ledger"
	"overseer/internal/types"
)

var (
	statsRecent   int
	statsCategory string
	statsWindow   int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the feedback ledger",
	Long: `Aggregates the append-only ledger: outcome counts by disposition and
category, the average aggregate score, applied weight adjustments, and the
recurring failing criteria per category.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			return err
		}
		defer led.Close()
		ctx := cmd.Context()

		stats, err := led.Summarize(ctx)
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render("── ledger summary ──"))
		fmt.Printf("%s %d    %s %.2f    %s %d\n",
			labelStyle.Render("attempts:"), stats.TotalEntries,
			labelStyle.Render("avg score:"), stats.AverageScore,
			labelStyle.Render("adjustments:"), stats.AdjustmentRows)

		for _, d := range []types.Disposition{
			types.DispositionPass, types.DispositionEnhance,
			types.DispositionRegenerate, types.DispositionFailed,
		} {
			if n := stats.ByDisposition[d]; n > 0 {
				fmt.Printf("  %s %d\n", dispositionStyle(d).Render(string(d)+":"), n)
			}
		}

		categories := types.AllCategories()
		if statsCategory != "" {
			categories = []types.TaskCategory{types.TaskCategory(statsCategory)}
		}
		for _, category := range categories {
			ranked, _, err := led.RecurringIssues(ctx, category, statsWindow)
			if err != nil {
				return err
			}
			if len(ranked) == 0 {
				continue
			}
			fmt.Printf("\n%s %s\n", labelStyle.Render("recurring issues:"), category)
			for _, ic := range ranked {
				fmt.Printf("  %3d  %s\n", ic.Count, ic.Criterion)
			}
		}

		if statsRecent > 0 {
			entries, err := led.Recent(ctx, statsRecent)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n", labelStyle.Render("recent entries:"))
			for _, e := range entries {
				fmt.Printf("  %s  %-10s att=%d %-10s %.2f %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Category, e.Attempt, e.Disposition, e.Score, e.Detail)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsRecent, "recent", 0, "also list the N newest ledger entries")
	statsCmd.Flags().StringVar(&statsCategory, "category", "", "restrict recurring-issue listing to one category")
	statsCmd.Flags().IntVar(&statsWindow, "window", ledger.DefaultWindow, "recurring-issue window size")
}
