package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/d65v/vecbase"
	"github.com/d65v/vecbase/similarity"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell against a database",
	Long: `Start an interactive shell. Vectors are written as a JSON array or as
whitespace-separated numbers.

Commands:
  insert <id> <vector> [metadata]   add or replace a record
  search <vector> [k]               top-k similar records (default k=5)
  get <id>                          show one record
  delete <id>                       remove a record
  len                               number of records
  stats                             store and graph statistics
  compact                           force graph compaction
  save <path>                       write a snapshot
  quit                              exit`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runREPL(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("vecbase: dim=%d metric=%s (type 'help' for commands)\n", cfg.Dimension, cfg.Metric)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := evalLine(cmd, db, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
	return scanner.Err()
}

func evalLine(cmd *cobra.Command, db *vecbase.DB, line string) error {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	ctx := cmd.Context()

	switch verb {
	case "help":
		fmt.Println(cmd.Long)
		return nil

	case "insert":
		id, arg, ok := strings.Cut(rest, " ")
		if !ok {
			return fmt.Errorf("usage: insert <id> <vector> [metadata]")
		}
		vec, meta, err := parseVectorArg(strings.TrimSpace(arg))
		if err != nil {
			return err
		}
		if err := db.Insert(ctx, id, vec, meta); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "search":
		vec, kArg, err := parseVectorArg(rest)
		if err != nil {
			return err
		}
		k := 5
		if kArg != "" {
			k, err = strconv.Atoi(kArg)
			if err != nil {
				return fmt.Errorf("invalid k %q", kArg)
			}
		}
		results, err := db.Search(ctx, vec, k)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for i, r := range results {
			if r.Metadata != "" {
				fmt.Printf("%2d. %s  score=%.6f  %s\n", i+1, r.ID, r.Score, r.Metadata)
			} else {
				fmt.Printf("%2d. %s  score=%.6f\n", i+1, r.ID, r.Score)
			}
		}
		return nil

	case "get":
		rec, err := db.Get(rest)
		if err != nil {
			return err
		}
		fmt.Printf("id=%s vector=%v metadata=%q\n", rec.ID, rec.Vector, rec.Metadata)
		return nil

	case "delete":
		if err := db.Delete(ctx, rest); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "len":
		fmt.Println(db.Len())
		return nil

	case "stats":
		s := db.Stats()
		fmt.Printf("records=%d live=%d tombstoned=%d max_level=%d entry=%s\n",
			s.Records, s.Index.Live, s.Index.Tombstoned, s.Index.MaxLevel, s.Index.EntryID)
		return nil

	case "compact":
		db.Compact(ctx)
		fmt.Println("ok")
		return nil

	case "save":
		if rest == "" {
			return fmt.Errorf("usage: save <path>")
		}
		if err := db.SaveSnapshot(ctx, rest); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	default:
		return fmt.Errorf("unknown command %q (type 'help')", verb)
	}
}

// parseVectorArg splits a JSON-array or whitespace-form vector off the front
// of arg and returns the remaining text (metadata or a trailing k).
func parseVectorArg(arg string) ([]float32, string, error) {
	if strings.HasPrefix(arg, "[") {
		end := strings.Index(arg, "]")
		if end < 0 {
			return nil, "", fmt.Errorf("unterminated vector literal")
		}
		vec, ok := similarity.ParseJSONEmbedding(arg[:end+1])
		if !ok {
			return nil, "", fmt.Errorf("invalid vector literal %q", arg[:end+1])
		}
		return vec, strings.TrimSpace(arg[end+1:]), nil
	}

	// Whitespace form consumes every numeric-looking field.
	fields := strings.Fields(arg)
	n := 0
	for n < len(fields) {
		if _, err := strconv.ParseFloat(fields[n], 32); err != nil {
			break
		}
		n++
	}
	if n == 0 {
		return nil, "", fmt.Errorf("expected a vector")
	}
	vec, ok := similarity.ParseTextEmbedding(strings.Join(fields[:n], " "))
	if !ok {
		return nil, "", fmt.Errorf("invalid vector")
	}
	return vec, strings.Join(fields[n:], " "), nil
}
