package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/atelier/internal/config"
	"github.com/zulandar/atelier/internal/db"
	"github.com/zulandar/atelier/internal/usage"
)

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Query the usage log",
	}

	cmd.AddCommand(newUsageListCmd())
	cmd.AddCommand(newUsageStatsCmd())
	return cmd
}

func newUsageListCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		model      string
		hours      int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent generations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}

			filters := usage.ListFilters{
				UserID: userID,
				Model:  model,
				Limit:  limit,
			}
			if hours > 0 {
				filters.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
			}

			rows, err := usage.List(gormDB, filters)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No generations found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tUSER\tMODEL\tSIZE\tSTEPS\tSEED\tPROMPT")
			for _, r := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dx%d\t%d\t%d\t%s\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04"),
					r.Username, r.Model, r.Width, r.Height,
					r.Steps, r.Seed, truncatePrompt(r.Prompt, 48))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atelier.yaml", "path to Atelier config file")
	cmd.Flags().StringVar(&userID, "user", "", "filter by Discord user ID")
	cmd.Flags().StringVar(&model, "model", "", "filter by model ID")
	cmd.Flags().IntVar(&hours, "hours", 0, "only show generations from the last N hours")
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "maximum rows to show")
	return cmd
}

func newUsageStatsCmd() *cobra.Command {
	var (
		configPath string
		hours      int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate usage for a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			report, err := usage.Stats(gormDB, now.Add(-time.Duration(hours)*time.Hour), now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Usage for the last %dh\n\n", hours)
			fmt.Fprintf(out, "Generations:  %d\n", report.Generations)
			fmt.Fprintf(out, "Unique users: %d\n", report.UniqueUsers)
			fmt.Fprintf(out, "Avg latency:  %dms\n", report.AvgLatencyMs)

			if len(report.ByModel) > 0 {
				fmt.Fprintln(out, "\nBy model:")
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "  MODEL\tCOUNT")
				for _, m := range report.ByModel {
					fmt.Fprintf(w, "  %s\t%d\n", m.Model, m.Count)
				}
				w.Flush()
			}

			if len(report.TopUsers) > 0 {
				fmt.Fprintln(out, "\nTop users:")
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "  USER\tID\tCOUNT")
				for _, u := range report.TopUsers {
					fmt.Fprintf(w, "  %s\t%s\t%d\n", u.Username, u.UserID, u.Count)
				}
				w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atelier.yaml", "path to Atelier config file")
	cmd.Flags().IntVar(&hours, "hours", 24, "lookback window in hours")
	return cmd
}

func truncatePrompt(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
