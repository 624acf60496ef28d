package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"sumbench/cmd/sumbench/ui"
	"sumbench/internal/embedding"
)

var (
	cacheConfigPath string
	cacheSearchK    int
	cacheClearModel string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the embedding cache",
	Long: `The embedding cache is content-addressed by (model, text hash), so
re-runs and resumed runs never re-embed unchanged text. It survives run
deletion.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and size",
	RunE:  cacheStats,
}

var cacheSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find the cached embeddings nearest to a text",
	Long: `Embeds the text with the configured engine and lists the nearest
cached entries by cosine distance.`,
	Args: cobra.MinimumNArgs(1),
	RunE: cacheSearch,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached embeddings",
	Long: `Removes cache entries, all of them or one model's. Cleared texts
re-embed on the next run that needs them.`,
	RunE: cacheClear,
}

func init() {
	cacheCmd.PersistentFlags().StringVarP(&cacheConfigPath, "config", "c", "sumbench.yaml", "Config file path (locates the database)")
	cacheSearchCmd.Flags().IntVarP(&cacheSearchK, "top", "k", 10, "How many neighbors to show")
	cacheClearCmd.Flags().StringVar(&cacheClearModel, "model", "", "Clear only this embedding model's entries")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSearchCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func cacheStats(cmd *cobra.Command, args []string) error {
	_, st, err := openEnvironment(cacheConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.GetCacheStats()
	if err != nil {
		return err
	}

	fmt.Printf("Entries: %d\n", stats.Entries)
	fmt.Printf("Size:    %.1f MiB\n", float64(stats.Bytes)/(1<<20))
	if len(stats.PerModel) == 0 {
		return nil
	}

	models := make([]string, 0, len(stats.PerModel))
	for m := range stats.PerModel {
		models = append(models, m)
	}
	sort.Strings(models)

	rows := make([][]string, 0, len(models))
	for _, m := range models {
		rows = append(rows, []string{m, fmt.Sprintf("%d", stats.PerModel[m])})
	}
	fmt.Println()
	fmt.Print(ui.RenderTable(ui.DefaultStyles(), []string{"Model", "Entries"}, rows))
	return nil
}

func cacheClear(cmd *cobra.Command, args []string) error {
	_, st, err := openEnvironment(cacheConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ClearCache(cacheClearModel)
	if err != nil {
		return err
	}
	if cacheClearModel != "" {
		fmt.Printf("Cleared %d entries for %s\n", n, cacheClearModel)
	} else {
		fmt.Printf("Cleared %d entries\n", n)
	}
	return nil
}

func cacheSearch(cmd *cobra.Command, args []string) error {
	cfg, st, err := openEnvironment(cacheConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	// The raw engine, not the cached wrapper: probing the cache should
	// not write to it.
	eng, err := embedding.NewEngine(embedding.Config{
		Provider: cfg.Models.Embedding.Provider,
		Endpoint: cfg.Models.Embedding.Endpoint,
		Model:    cfg.Models.Embedding.Model,
		APIKey:   cfg.Models.Embedding.APIKey,
		TaskType: cfg.Models.Embedding.TaskType,
	})
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	vector, err := eng.Embed(cmd.Context(), text)
	if err != nil {
		return err
	}

	hits, err := st.SearchCachedEmbeddings(eng.Name(), vector, cacheSearchK)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No cached embeddings for", eng.Name())
		return nil
	}

	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, []string{
			h.ContentHash[:12],
			h.ModelID,
			fmt.Sprintf("%d", h.Dims),
			fmt.Sprintf("%.4f", h.Distance),
		})
	}
	fmt.Print(ui.RenderTable(ui.DefaultStyles(), []string{"Hash", "Model", "Dims", "Distance"}, rows))
	return nil
}
