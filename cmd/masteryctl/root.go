package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-mastery/internal/config"
	"github.com/mind-engage/mindengage-mastery/internal/db"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "masteryctl",
	Short:         "Operate the mastery engine database",
	Long:          "masteryctl seeds fixtures, previews and commits section grading, and tails the event log.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cfg := config.FromEnv()
	rootCmd.PersistentFlags().String("db-driver", cfg.DBDriver, "Database driver: sqlite or postgres (overrides DB_DRIVER)")
	rootCmd.PersistentFlags().String("db-dsn", cfg.DBDSN, "Database DSN (overrides DB_DSN)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log engine activity to stderr")

	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(eventsCmd)
}

// openDB resolves the connection from flags, falling back to the environment.
func openDB(cmd *cobra.Command) (*sql.DB, error) {
	name, _ := cmd.Flags().GetString("db-driver")
	dsn, _ := cmd.Flags().GetString("db-dsn")
	driver, err := db.ParseDriver(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return db.Open(ctx, driver, dsn)
}

func cliLogger(cmd *cobra.Command) *logger.Logger {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		if l, err := logger.New("dev"); err == nil {
			return l
		}
	}
	return logger.Nop()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
