package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"sumbench/internal/config"
	"sumbench/internal/report"
)

var (
	reportConfigPath string
	reportShow       bool
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Regenerate a run's report artifacts",
	Long: `Rebuilds report.json and report.md from the persisted scores and
prints the leaderboard. --show renders the Markdown report in the
terminal instead.`,
	Args: cobra.ExactArgs(1),
	RunE: showReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportConfigPath, "config", "c", "sumbench.yaml", "Config file path (locates the database)")
	reportCmd.Flags().BoolVar(&reportShow, "show", false, "Render the Markdown report in the terminal")
}

func showReport(cmd *cobra.Command, args []string) error {
	cfg, st, err := openEnvironment(reportConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := report.Build(st, args[0], nil)
	if err != nil {
		return err
	}
	if len(r.Scores) == 0 {
		return fmt.Errorf("run %s has no aggregated scores yet", args[0])
	}

	workDir := cfg.Run.WorkDir
	if len(r.Config) > 0 {
		if snap, err := config.FromSnapshot(r.Config); err == nil {
			workDir = snap.Run.WorkDir
		}
	}
	jsonPath, mdPath, err := r.Write(report.Dir(workDir, args[0]))
	if err != nil {
		return err
	}

	if reportShow {
		md, err := os.ReadFile(mdPath)
		if err != nil {
			return err
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return err
		}
		out, err := renderer.Render(string(md))
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	fmt.Print(report.Leaderboard(r.Scores))
	fmt.Printf("\nWrote %s and %s\n", jsonPath, mdPath)
	return nil
}
