// Package cli implements the vecbase command-line tool: an interactive
// shell and a benchmark runner around the embedded database.
//
// Configuration comes from an optional YAML file plus VECBASE_* environment
// variables (VECBASE_DIM, VECBASE_METRIC, VECBASE_MAX_ELEMENTS,
// VECBASE_STORAGE_PATH, VECBASE_PLUGINS), with flags taking precedence.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/d65v/vecbase"
)

var (
	cfgFile  string
	logLevel string
	cfg      vecbase.Config
)

var rootCmd = &cobra.Command{
	Use:   "vecbase",
	Short: "Embedded vector database shell and benchmark tool",
	Long: `vecbase stores fixed-dimension embeddings keyed by string identifiers and
answers nearest-neighbor similarity queries.

Example usage:
  VECBASE_DIM=384 vecbase repl            # interactive shell, in-memory
  vecbase repl --dim 3 --metric euclidean # explicit configuration
  vecbase bench --dim 128 -n 100000       # insert/search benchmark`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("dim", 0, "vector dimension (required unless set via config or VECBASE_DIM)")
	rootCmd.PersistentFlags().String("metric", "cosine", "similarity metric (cosine, euclidean, dot)")
	rootCmd.PersistentFlags().Int("max-elements", 0, "soft capacity hint (0 = unbounded)")
	rootCmd.PersistentFlags().String("storage-path", "", "on-disk record store (empty = in-memory)")
	rootCmd.PersistentFlags().StringSlice("plugins", nil, `hooks to register, e.g. "clamp,min_score=0.25"`)
}

func loadConfig(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix("VECBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range map[string]string{
		"dim":          "dim",
		"metric":       "metric",
		"max-elements": "max_elements",
		"storage-path": "storage_path",
		"plugins":      "plugins",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg = vecbase.Config{
		Dimension:   v.GetInt("dim"),
		Metric:      v.GetString("metric"),
		MaxElements: v.GetInt("max_elements"),
		StoragePath: v.GetString("storage_path"),
		Plugins:     v.GetStringSlice("plugins"),
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("vector dimension is required (--dim or VECBASE_DIM)")
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func openDB(cmd *cobra.Command) (*vecbase.DB, error) {
	return vecbase.New(cmd.Context(), cfg,
		vecbase.WithLogger(vecbase.NewTextLogger(parseLogLevel(logLevel))))
}
