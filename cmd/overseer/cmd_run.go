package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"overseer/internal/criteria"
	"overseer/internal/ledger"
	"overseer/internal/pipeline"
	"overseer/internal/routing"
	"overseer/internal/types"
	"overseer/internal/worker"
)

var (
	runContextFiles []string
	runBatchFile    string
	runJSONOut      bool
	runRawOut       bool
)

var runCmd = &cobra.Command{
	Use:   "run [instruction]",
	Short: "Process one instruction (or a batch) through the full pipeline",
	Long: `Classifies the instruction, decides whether to delegate, and if so runs
the generate / validate / gate loop until the artifact passes, is enhanced,
or retries are exhausted.

Examples:
  overseer run "survey recent papers on vector databases"
  overseer run --context notes.md "write a report on last week's incident"
  overseer run --file requests.txt`,
	Args: cobra.ArbitraryArgs,
	RunE: runInstruction,
}

func init() {
	runCmd.Flags().StringSliceVar(&runContextFiles, "context", nil, "file(s) to attach as request context")
	runCmd.Flags().StringVar(&runBatchFile, "file", "", "process one request per line from this file")
	runCmd.Flags().BoolVar(&runJSONOut, "json", false, "emit the raw result as JSON")
	runCmd.Flags().BoolVar(&runRawOut, "raw", false, "print the artifact without markdown rendering")
}

func runInstruction(cmd *cobra.Command, args []string) error {
	if runBatchFile == "" && len(args) == 0 {
		return errors.New("provide an instruction or --file")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor, led, err := buildSupervisor()
	if err != nil {
		return err
	}
	defer led.Close()

	if runBatchFile != "" {
		return runBatch(ctx, supervisor)
	}

	req := types.Request{Text: strings.Join(args, " ")}
	req.Context, err = loadContextFiles(runContextFiles)
	if err != nil {
		return err
	}

	result, err := supervisor.Process(ctx, req)
	if err != nil {
		return err
	}
	if err := renderResult(result); err != nil {
		return err
	}
	if result.Disposition == types.DispositionFailed {
		return fmt.Errorf("request %s failed after %d attempts", result.RequestID, result.AttemptCount)
	}
	return nil
}

func runBatch(ctx context.Context, supervisor *pipeline.Supervisor) error {
	f, err := os.Open(runBatchFile)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var reqs []types.Request
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reqs = append(reqs, types.Request{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	if len(reqs) == 0 {
		return errors.New("batch file contains no requests")
	}

	results, err := supervisor.ProcessAll(ctx, reqs)
	if err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if err := renderResult(result); err != nil {
			return err
		}
		if result.Disposition == types.DispositionFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(results))
	}
	return nil
}

func buildSupervisor() (*pipeline.Supervisor, *ledger.Ledger, error) {
	registry, err := criteria.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	if err := applyCriteriaOverrides(registry); err != nil {
		return nil, nil, err
	}

	led, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	w, err := buildWorker()
	if err != nil {
		led.Close()
		return nil, nil, err
	}

	policy := routing.NewPolicy(cfg.Thresholds(routing.DefaultThresholds()), logger)
	supervisor := pipeline.NewSupervisor(policy, registry, w, led, pipeline.Options{
		MaxRetries:  cfg.Retry.MaxRetries,
		AutoEnhance: cfg.Retry.AutoEnhance,
		OutputMode:  cfg.OutputMode(),
	}, logger)
	return supervisor, led, nil
}

func buildWorker() (types.Worker, error) {
	switch cfg.Worker.Provider {
	case "subprocess":
		return worker.NewSubprocessWorker(cfg.Worker.Command, cfg.Worker.Args,
			cfg.Worker.Model, cfg.Timeout(), logger), nil
	case "http":
		apiKey := ""
		if cfg.Worker.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Worker.APIKeyEnv)
		}
		return worker.NewHTTPWorker(cfg.Worker.Endpoint, cfg.Worker.Model,
			apiKey, cfg.Timeout(), logger), nil
	case "mock":
		return worker.NewMockWorker(worker.MockTurn{
			Artifact: "## Summary\n\nMock worker output for dry runs.\n",
		}), nil
	default:
		return nil, fmt.Errorf("unknown worker provider %q", cfg.Worker.Provider)
	}
}

func applyCriteriaOverrides(registry *criteria.Registry) error {
	for name, cc := range cfg.Criteria {
		category := types.TaskCategory(name)
		if err := registry.SetThresholds(category, criteria.Thresholds{
			Pass:    cc.Pass,
			Enhance: cc.Enhance,
		}); err != nil {
			return err
		}
		if len(cc.PhaseWeights) == 0 {
			continue
		}
		weights := make(map[types.Phase]float64, len(cc.PhaseWeights))
		for phase, w := range cc.PhaseWeights {
			weights[types.Phase(phase)] = w
		}
		if err := registry.SetPhaseWeights(category, weights); err != nil {
			return err
		}
	}
	return nil
}

func loadContextFiles(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	blobs := make(map[string]string, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read context file: %w", err)
		}
		blobs[path] = string(data)
	}
	return blobs, nil
}

// =============================================================================
// RENDERING
// =============================================================================

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	enhanceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func dispositionStyle(d types.Disposition) lipgloss.Style {
	switch d {
	case types.DispositionPass:
		return passStyle
	case types.DispositionEnhance:
		return enhanceStyle
	default:
		return failStyle
	}
}

func renderResult(result *types.PipelineResult) error {
	if runJSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(headerStyle.Render("── " + result.RequestID + " ──"))
	fmt.Printf("%s %s    %s %s    %s %d\n",
		labelStyle.Render("category:"), result.Category,
		labelStyle.Render("cost:"), fmt.Sprint(result.Decision.EstimatedCost),
		labelStyle.Render("attempts:"), result.AttemptCount)

	if !result.Delegated {
		fmt.Println(labelStyle.Render("handled locally, no delegation"))
		return nil
	}

	fmt.Printf("%s %s    %s %.2f\n",
		labelStyle.Render("disposition:"), dispositionStyle(result.Disposition).Render(string(result.Disposition)),
		labelStyle.Render("score:"), result.AggregateScore)

	for _, issue := range result.Issues {
		marker := "issue"
		if issue.Critical {
			marker = failStyle.Render("critical")
		}
		fmt.Printf("  %s %s (%s, %.2f)\n", marker, issue.Criterion, issue.Phase, issue.Score)
	}

	if result.FinalArtifact == "" {
		return nil
	}
	fmt.Println()
	if runRawOut {
		fmt.Println(result.FinalArtifact)
		return nil
	}
	rendered, err := glamour.Render(result.FinalArtifact, "auto")
	if err != nil {
		logger.Debug("markdown rendering failed, printing raw", zap.Error(err))
		fmt.Println(result.FinalArtifact)
		return nil
	}
	fmt.Print(rendered)
	return nil
}
