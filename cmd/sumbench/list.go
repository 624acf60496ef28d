package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sumbench/cmd/sumbench/ui"
	"sumbench/internal/types"
)

var (
	listConfigPath string
	listStatus     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List benchmark runs",
	RunE:  listRuns,
}

func init() {
	listCmd.Flags().StringVarP(&listConfigPath, "config", "c", "sumbench.yaml", "Config file path (locates the database)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, running, paused, completed, failed)")
}

func listRuns(cmd *cobra.Command, args []string) error {
	_, st, err := openEnvironment(listConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	status := types.RunStatus(listStatus)
	if listStatus != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", listStatus)
	}

	runs, err := st.ListRuns(status)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Name,
			string(r.Status),
			string(r.CurrentPhase),
			fmtWhen(r.StartedAt),
			fmtWhen(&r.UpdatedAt),
		})
	}
	fmt.Print(ui.RenderTable(ui.DefaultStyles(),
		[]string{"ID", "Name", "Status", "Phase", "Started", "Updated"}, rows))
	return nil
}

func fmtWhen(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
