package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sumbench/cmd/sumbench/ui"
	"sumbench/internal/aggregate"
	"sumbench/internal/config"
	"sumbench/internal/contrastive"
	"sumbench/internal/embedding"
	"sumbench/internal/extract"
	"sumbench/internal/generate"
	"sumbench/internal/iterative"
	"sumbench/internal/judging"
	"sumbench/internal/llm"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/report"
	"sumbench/internal/retrieval"
	"sumbench/internal/store"
	"sumbench/internal/types"
	"sumbench/internal/usage"
)

var (
	runConfigPath string
	runTUI        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a benchmark run and execute it",
	Long: `Creates a run from the config file and executes every phase:
extraction, generation, the enabled evaluators, aggregation, and
reporting. Progress persists to SQLite; interrupting with Ctrl-C (or by
touching the pause sentinel in the work directory) pauses the run so it
can be resumed later.`,
	RunE: runBenchmark,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "sumbench.yaml", "Config file path")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live dashboard")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, st, err := openEnvironment(runConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	snapshot, err := cfg.Snapshot()
	if err != nil {
		return err
	}
	run := &types.Run{
		Name:        cfg.Run.Name,
		Description: cfg.Run.Description,
		Config:      snapshot,
	}
	if err := st.CreateRun(run); err != nil {
		return err
	}
	logger.Info("Created run", zap.String("run_id", run.ID), zap.String("name", run.Name))
	fmt.Printf("Created run %s\n", run.ID)

	clearPauseSentinel(cfg.Run.WorkDir)
	return executeRun(run, cfg, st, runTUI)
}

// openEnvironment loads the config, brings up category file logging,
// and opens the database.
func openEnvironment(configPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Debug || verbose); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// executeRun drives a run to completion, pause, or failure. Shared by
// run and resume.
func executeRun(run *types.Run, cfg *config.Config, st *store.Store, useTUI bool) error {
	reg, err := llm.NewRegistry(cfg)
	if err != nil {
		return err
	}
	tracker := usage.NewTracker()
	reg.Instrument(tracker)
	inner, err := embedding.NewEngine(embedding.Config{
		Provider: cfg.Models.Embedding.Provider,
		Endpoint: cfg.Models.Embedding.Endpoint,
		Model:    cfg.Models.Embedding.Model,
		APIKey:   cfg.Models.Embedding.APIKey,
		TaskType: cfg.Models.Embedding.TaskType,
	})
	if err != nil {
		return err
	}

	pctx := pipeline.NewContext(run.ID, cfg, st, reg, embedding.NewCachedEngine(inner, st))

	orch := pipeline.NewOrchestrator()
	orch.Register(extract.NewExecutor())
	orch.Register(generate.NewExecutor())
	orch.Register(iterative.NewExecutor())
	orch.Register(judging.NewExecutor())
	orch.Register(contrastive.NewExecutor())
	orch.Register(retrieval.NewExecutor())
	orch.Register(aggregate.NewExecutor())
	orch.Register(report.NewExecutor(orch.Failures()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Shutdown signal received, pausing run")
			cancel()
		case <-ctx.Done():
		}
	}()

	stopWatch, err := watchPause(ctx, cancel, cfg.Run.WorkDir)
	if err != nil {
		logger.Warn("Pause watcher unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	var runErr error
	if useTUI {
		runErr = runWithDashboard(ctx, cancel, orch, pctx, run)
	} else {
		pctx.OnProgress(func(ev pipeline.ProgressEvent) {
			fmt.Printf("[%s] %d/%d %s\n", ev.Phase, ev.Completed, ev.Total, ev.Message)
		})
		runErr = orch.Run(ctx, pctx)
	}

	writeUsage(tracker, cfg.Run.WorkDir, run.ID)

	switch {
	case runErr == nil:
		printRunSummary(st, run.ID, cfg.Run.WorkDir)
		return nil
	case errors.Is(runErr, context.Canceled):
		fmt.Printf("Run paused. Resume with: sumbench resume %s\n", run.ID)
		return nil
	default:
		return runErr
	}
}

// writeUsage persists and prints the token spend. Paused and failed
// runs spent tokens too, so this runs on every outcome.
func writeUsage(tracker *usage.Tracker, workDir, runID string) {
	snap := tracker.Snapshot()
	if snap.Calls == 0 {
		return
	}
	path := filepath.Join(report.Dir(workDir, runID), "usage.json")
	if err := tracker.WriteFile(path); err != nil {
		logger.Warn("Could not write usage", zap.Error(err))
		return
	}
	fmt.Printf("Tokens: %d calls, %d in / %d out", snap.Calls, snap.Run.InputTokens, snap.Run.OutputTokens)
	if snap.Run.Cost > 0 {
		fmt.Printf(", est. $%.4f", snap.Run.Cost)
	}
	fmt.Println()
}

// runWithDashboard executes the orchestrator behind a bubbletea
// dashboard. Quitting the dashboard cancels the run, pausing it.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, orch *pipeline.Orchestrator, pctx *pipeline.Context, run *types.Run) error {
	p := tea.NewProgram(ui.NewDashboard(run.ID, run.Name), tea.WithAltScreen())
	pctx.OnProgress(func(ev pipeline.ProgressEvent) {
		p.Send(ui.ProgressMsg(ev))
	})

	done := make(chan error, 1)
	go func() {
		err := orch.Run(ctx, pctx)
		done <- err
		p.Send(ui.DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("dashboard failed: %w", err)
	}
	cancel()
	return <-done
}

func printRunSummary(st *store.Store, runID, workDir string) {
	scores, err := st.GetAggregatedScores(runID)
	if err != nil || len(scores) == 0 {
		return
	}
	fmt.Println()
	fmt.Print(report.Leaderboard(scores))
	fmt.Printf("\nReports: %s\n", report.Dir(workDir, runID))
}
