package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/db"
	"github.com/mind-engage/mindengage-mastery/internal/grading"
)

// resetFlags puts every flag back to its default; the command tree is
// package-level, so values set by one run would leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedThenGrade(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "cli.db")
	fixtures := filepath.Join("..", "..", "internal", "seed", "testdata", "fixtures.yaml")

	out, err := run(t, "seed", fixtures, "--db-driver", "sqlite", "--db-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 3 items, 1 sections, 2 enrollments")

	_, err = run(t, "grade", "process", "math-101", "--as", "intruder", "--role", "teacher", "--db-driver", "sqlite", "--db-dsn", dsn)
	assert.Error(t, err)

	reportDir := filepath.Join(dir, "reports")
	_, err = run(t, "grade", "process", "math-101", "--as", "prof", "--role", "teacher",
		"--report-dir", reportDir, "--db-driver", "sqlite", "--db-dsn", dsn)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(reportDir, "grading", "math-101", "*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	h, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	defer h.Close()
	en, err := grading.NewSQLStore(h).GetEnrollment(context.Background(), "math-101", "alice")
	require.NoError(t, err)
	assert.Equal(t, grading.EnrollmentPassed, en.Status)

	_, err = run(t, "events", "--since", "0", "--db-driver", "sqlite", "--db-dsn", dsn)
	require.NoError(t, err)
}

func TestGradeActorDefaults(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cli.db")
	fixtures := filepath.Join("..", "..", "internal", "seed", "testdata", "fixtures.yaml")
	_, err := run(t, "seed", fixtures, "--db-driver", "sqlite", "--db-dsn", dsn)
	require.NoError(t, err)

	// no acting user and no role grants nothing
	_, err = run(t, "grade", "preview", "math-101", "--db-driver", "sqlite", "--db-dsn", dsn)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = run(t, "grade", "preview", "math-101", "--as", "intruder", "--db-driver", "sqlite", "--db-dsn", dsn)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// the instructor needs no role flag
	out, err := run(t, "grade", "process", "math-101", "--as", "prof", "--db-driver", "sqlite", "--db-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "alice")

	_, err = run(t, "grade", "preview", "math-101", "--role", grading.RoleAdmin, "--db-driver", "sqlite", "--db-dsn", dsn)
	assert.NoError(t, err)
}

func TestSeedMissingFile(t *testing.T) {
	_, err := run(t, "seed", filepath.Join(t.TempDir(), "nope.yaml"), "--db-driver", "sqlite", "--db-dsn", filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
