package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Insert demo vectors and run a sample query",
	Long: `Open a database, insert a handful of demo vectors, and print the top-3
results for a sample query. A stand-in for embedding the library in a real
serving process.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	for i := 0; i < 10; i++ {
		vector := make([]float32, cfg.Dimension)
		for j := range vector {
			vector[j] = (float32(i) + float32(j)) / 100
		}
		id := fmt.Sprintf("vec_%d", i)
		if err := db.Insert(ctx, id, vector, fmt.Sprintf("demo metadata %d", i)); err != nil {
			return fmt.Errorf("insert %s failed: %w", id, err)
		}
	}

	query := make([]float32, cfg.Dimension)
	for j := range query {
		query[j] = float32(j) / 100
	}
	results, err := db.Search(ctx, query, 3)
	if err != nil {
		return err
	}

	fmt.Println("top-3 results for demo query:")
	for _, r := range results {
		fmt.Printf("  id=%-8s score=%.6f meta=%q\n", r.ID, r.Score, r.Metadata)
	}
	return nil
}
