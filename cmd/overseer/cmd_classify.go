package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"overseer/internal/routing"
)

var classifyJSONOut bool

var classifyCmd = &cobra.Command{
	Use:   "classify [instruction]",
	Short: "Show the delegation decision for an instruction without running it",
	Long: `Runs only the routing stage: category classification, cost estimate,
and the triggered delegation factors. Nothing is sent to the worker.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := routing.NewPolicy(cfg.Thresholds(routing.DefaultThresholds()), logger)
		decision := policy.Decide(strings.Join(args, " "), nil)

		if classifyJSONOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		}

		verdict := "handle locally"
		if decision.ShouldDelegate {
			verdict = "delegate"
		}
		fmt.Printf("%s %s\n", labelStyle.Render("category:"), decision.Category)
		fmt.Printf("%s %d (threshold %d)\n", labelStyle.Render("estimated cost:"),
			decision.EstimatedCost, policy.Threshold(decision.Category))
		fmt.Printf("%s %s\n", labelStyle.Render("factors:"), strings.Join(decision.TriggeredFactors, ", "))
		fmt.Printf("%s %s\n", labelStyle.Render("verdict:"), headerStyle.Render(verdict))
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSONOut, "json", false, "emit the decision as JSON")
}
