package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/me/nightsched/pkg/model"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var limit, offset int
	var scenario string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))
			if scenario != "" {
				q.Set("scenario", scenario)
			}
			resp, err := client.Get("/api/v1/runs/", q)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			var runs []model.Run
			if err := json.Unmarshal(resp.Data, &runs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-20s  %-8s  %-6s  %-10s  %s\n", "ID", "SCENARIO", "NIGHTS", "SITES", "RECOMPUTES", "CREATED")
			fmt.Fprintf(out, "%-40s  %-20s  %-8s  %-6s  %-10s  %s\n", "--", "--------", "------", "-----", "----------", "-------")
			for _, r := range runs {
				recomputes := 0
				if r.Summary != nil {
					recomputes = r.Summary.Recomputes
				}
				fmt.Fprintf(out, "%-40s  %-20s  %-8d  %-6d  %-10d  %s\n",
					r.ID, r.Scenario, r.NumNights, len(r.Sites), recomputes, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	cmd.Flags().StringVar(&scenario, "scenario", "", "Only list runs of this scenario")
	return cmd
}
