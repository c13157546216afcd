package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overseer/internal/criteria"
	"overseer/internal/routing"
	"overseer/internal/types"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print the resolved values",
	Long: `Loads the configuration file over the defaults, applies every criteria
override to a throwaway registry so weight-sum violations surface here
rather than at request time, and prints what the pipeline would run with.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// cfg already passed config.Validate in the root pre-run; exercise
		// the registry invariants too.
		registry, err := criteria.NewRegistry()
		if err != nil {
			return err
		}
		if err := applyCriteriaOverrides(registry); err != nil {
			return fmt.Errorf("criteria overrides rejected: %w", err)
		}

		fmt.Println(headerStyle.Render("── resolved configuration ──"))
		fmt.Printf("%s %s", labelStyle.Render("worker:"), cfg.Worker.Provider)
		switch cfg.Worker.Provider {
		case "subprocess":
			fmt.Printf(" (%s, model %s)", cfg.Worker.Command, cfg.Worker.Model)
		case "http":
			fmt.Printf(" (%s, model %s)", cfg.Worker.Endpoint, cfg.Worker.Model)
		}
		fmt.Printf("  timeout %s, output %s\n", cfg.Timeout(), cfg.OutputMode())
		fmt.Printf("%s max_retries=%d auto_enhance=%v\n",
			labelStyle.Render("retry:"), cfg.Retry.MaxRetries, cfg.Retry.AutoEnhance)
		fmt.Printf("%s %s\n", labelStyle.Render("ledger:"), cfg.Ledger.Path)

		thresholds := cfg.Thresholds(routing.DefaultThresholds())
		snapshot := registry.Snapshot()
		fmt.Printf("\n%s\n", labelStyle.Render("per-category gates:"))
		for _, category := range types.AllCategories() {
			th := snapshot.ThresholdsFor(category)
			fmt.Printf("  %-10s cost>%d  pass>=%.2f  enhance>=%.2f\n",
				category, thresholds[category], th.Pass, th.Enhance)
		}

		fmt.Println(passStyle.Render("\nconfiguration OK"))
		return nil
	},
}
