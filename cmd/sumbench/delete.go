package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sumbench/internal/store"
)

var (
	deleteConfigPath string
	deleteBackup     bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and everything it produced",
	Long: `Deletes a run row and cascades to its code units, summaries,
evaluation results, pairwise comparisons, queries, distractor sets,
progress, and scores. The embedding cache is content-addressed and
survives. --backup copies the database file first.`,
	Args: cobra.ExactArgs(1),
	RunE: deleteRun,
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteConfigPath, "config", "c", "sumbench.yaml", "Config file path (locates the database)")
	deleteCmd.Flags().BoolVar(&deleteBackup, "backup", false, "Back up the database file before deleting")
}

func deleteRun(cmd *cobra.Command, args []string) error {
	_, st, err := openEnvironment(deleteConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if deleteBackup {
		path, err := store.CreateBackup(st.Path())
		if err != nil {
			return err
		}
		fmt.Printf("Backup written to %s\n", path)
	}

	if err := st.DeleteRun(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", args[0])
	return nil
}
