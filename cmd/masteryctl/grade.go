package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-mastery/internal/assessment"
	"github.com/mind-engage/mindengage-mastery/internal/config"
	"github.com/mind-engage/mindengage-mastery/internal/grading"
	"github.com/mind-engage/mindengage-mastery/internal/reports"
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Preview or commit the grading of a section",
}

var gradePreviewCmd = &cobra.Command{
	Use:   "preview <section>",
	Short: "Show every student's checks without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := gradingEngine(cmd)
		if err != nil {
			return err
		}
		defer closeDB()
		out, err := eng.Preview(cmd.Context(), actorFlag(cmd), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var gradeProcessCmd = &cobra.Command{
	Use:   "process <section>",
	Short: "Grade every enrollment of a section and persist the outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := gradingEngine(cmd)
		if err != nil {
			return err
		}
		defer closeDB()
		actor := actorFlag(cmd)
		out, err := eng.Process(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("report-dir"); dir != "" {
			archive, err := reports.NewFSArchive(dir)
			if err != nil {
				return err
			}
			key, err := reports.SaveGradingReport(cmd.Context(), archive, actor, out, time.Now())
			if err != nil {
				return fmt.Errorf("archive report: %w", err)
			}
			url, _ := archive.URL(key)
			fmt.Fprintln(cmd.ErrOrStderr(), "report:", url)
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	for _, c := range []*cobra.Command{gradePreviewCmd, gradeProcessCmd} {
		c.Flags().String("as", "", "Acting user id (must be the section instructor unless --role admin)")
		c.Flags().String("role", "", "Acting role (admin may grade any section)")
		c.Flags().Int("concurrency", config.FromEnv().GradingConcurrency, "Students evaluated in parallel")
		gradeCmd.AddCommand(c)
	}
	gradeProcessCmd.Flags().String("report-dir", "", "Archive the batch result as JSON below this directory")
}

func actorFlag(cmd *cobra.Command) grading.Actor {
	id, _ := cmd.Flags().GetString("as")
	role, _ := cmd.Flags().GetString("role")
	return grading.Actor{ID: id, Role: role}
}

func gradingEngine(cmd *cobra.Command) (*grading.Engine, func(), error) {
	h, err := openDB(cmd)
	if err != nil {
		return nil, nil, err
	}
	n, _ := cmd.Flags().GetInt("concurrency")
	eng := grading.NewEngine(grading.NewSQLStore(h), assessment.NewSQLStore(h),
		grading.WithConcurrency(n),
		grading.WithLogger(cliLogger(cmd)),
	)
	return eng, func() { _ = h.Close() }, nil
}
