package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-mastery/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load items, sections, enrollments and mastery from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		fx, err := seed.Parse(f)
		if err != nil {
			return err
		}
		h, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer h.Close()
		c, err := seed.Apply(cmd.Context(), h, fx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items, %d sections, %d enrollments, %d submissions, %d mastery records\n",
			c.Items, c.Sections, c.Enrollments, c.Submissions, c.Mastery)
		return nil
	},
}
