package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/me/nightsched/pkg/model"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var night int
	var site string

	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show a stored run and its timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/runs/"+url.PathEscape(id), nil)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			var run model.Run
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			q := url.Values{}
			if night > 0 {
				q.Set("night", strconv.Itoa(night-1))
			}
			if site != "" {
				q.Set("site", site)
			}
			resp, err = client.Get("/api/v1/runs/"+url.PathEscape(id)+"/timeline", q)
			if err != nil {
				return fmt.Errorf("get timeline: %w", err)
			}
			var entries []model.EntryRecord
			if err := json.Unmarshal(resp.Data, &entries); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", run.ID)
			fmt.Fprintf(out, "  Scenario: %s\n", run.Scenario)
			if run.Source != "" {
				fmt.Fprintf(out, "  Source:   %s\n", run.Source)
			}
			fmt.Fprintf(out, "  Nights:   %d\n", run.NumNights)
			fmt.Fprintf(out, "  Created:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			if run.Summary != nil {
				fmt.Fprintf(out, "  Totals:   %d recomputes, %d visits, %d anomalies, %d failed\n",
					run.Summary.Recomputes, run.Summary.Visits, run.Summary.Anomalies, run.Summary.Failed)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "\nNo timeline entries.")
				return nil
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-6s  %-5s  %-4s  %-5s  %-18s  %-6s  %s\n", "NIGHT", "SITE", "SEQ", "SLOT", "EVENT", "VISITS", "DESCRIPTION")
			for _, e := range entries {
				visits := "-"
				if e.Plan != nil {
					visits = strconv.Itoa(len(e.Plan.Visits))
				}
				desc := e.Description
				if e.Final {
					desc += " (final)"
				}
				fmt.Fprintf(out, "%-6d  %-5s  %-4d  %-5d  %-18s  %-6s  %s\n",
					e.Night+1, e.Site, e.Seq, e.Timeslot, e.EventKind, visits, desc)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&night, "night", 0, "Only show this night (1-based)")
	cmd.Flags().StringVar(&site, "site", "", "Only show this site")
	return cmd
}
