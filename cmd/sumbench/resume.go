package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sumbench/internal/config"
)

var (
	resumeConfigPath string
	resumeTUI        bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a paused run",
	Long: `Resumes a run from its first incomplete phase. Outstanding work
is re-derived from stored rows, so finished items are never redone.

The run's stored config snapshot drives execution, keeping the model
set and weights it started with; API keys resolve from the environment
again. Completed and failed runs are terminal and cannot resume.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeRun,
}

func init() {
	resumeCmd.Flags().StringVarP(&resumeConfigPath, "config", "c", "sumbench.yaml", "Config file path (locates the database)")
	resumeCmd.Flags().BoolVar(&resumeTUI, "tui", false, "Show the live dashboard")
}

func resumeRun(cmd *cobra.Command, args []string) error {
	cfg, st, err := openEnvironment(resumeConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	if len(run.Config) > 0 {
		snap, err := config.FromSnapshot(run.Config)
		if err != nil {
			logger.Warn("Stored config snapshot unreadable, using current config", zap.Error(err))
		} else {
			cfg = snap
		}
	}

	logger.Info("Resuming run",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.String("phase", string(run.CurrentPhase)))

	clearPauseSentinel(cfg.Run.WorkDir)
	return executeRun(run, cfg, st, resumeTUI)
}
