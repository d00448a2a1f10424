package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	benchInserts  int
	benchSearches int
	benchTopK     int
	benchSeed     int64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run an insert/search benchmark",
	Long: `Insert random vectors, then run random queries, and report throughput.

Examples:
  vecbase bench --dim 128 -n 100000
  vecbase bench --dim 768 --metric dot -n 10000 -q 1000 -k 10`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVarP(&benchInserts, "inserts", "n", 10000, "number of vectors to insert")
	benchCmd.Flags().IntVarP(&benchSearches, "searches", "q", 1000, "number of queries to run")
	benchCmd.Flags().IntVarP(&benchTopK, "top-k", "k", 10, "results per query")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1, "data RNG seed")
}

func runBench(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	rng := rand.New(rand.NewSource(benchSeed))

	randomVector := func() []float32 {
		v := make([]float32, cfg.Dimension)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		return v
	}

	bar := progressbar.Default(int64(benchInserts), "inserting")
	insertStart := time.Now()
	for i := 0; i < benchInserts; i++ {
		if err := db.Insert(ctx, fmt.Sprintf("v%d", i), randomVector(), ""); err != nil {
			return fmt.Errorf("insert %d failed: %w", i, err)
		}
		_ = bar.Add(1)
	}
	insertDur := time.Since(insertStart)

	bar = progressbar.Default(int64(benchSearches), "searching")
	searchStart := time.Now()
	for i := 0; i < benchSearches; i++ {
		if _, err := db.Search(ctx, randomVector(), benchTopK); err != nil {
			return fmt.Errorf("search %d failed: %w", i, err)
		}
		_ = bar.Add(1)
	}
	searchDur := time.Since(searchStart)

	stats := db.Stats()
	fmt.Printf("\ninserts:  %d in %v (%.0f/s)\n",
		benchInserts, insertDur.Round(time.Millisecond), float64(benchInserts)/insertDur.Seconds())
	fmt.Printf("searches: %d in %v (%.0f/s, k=%d)\n",
		benchSearches, searchDur.Round(time.Millisecond), float64(benchSearches)/searchDur.Seconds(), benchTopK)
	fmt.Printf("graph:    live=%d max_level=%d\n", stats.Index.Live, stats.Index.MaxLevel)
	return nil
}
