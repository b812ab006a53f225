package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/me/nightsched/internal/config"
	"github.com/me/nightsched/internal/engine"
	"github.com/me/nightsched/internal/ranker"
	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/internal/sim"
	"github.com/me/nightsched/internal/store"
	"github.com/me/nightsched/internal/telemetry"
	"github.com/me/nightsched/internal/timeline"
	"github.com/me/nightsched/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cfg := config.DefaultRunConfig()

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Schedule every night of a scenario and print the timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Scenario = args[0]
			cfg.DBPath = flagDB

			return runScenario(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().IntVar(&cfg.Lookahead, "lookahead", cfg.Lookahead, "Nights handed to the planner on each recompute")
	cmd.Flags().BoolVar(&cfg.Strict, "strict", false, "Fail on out-of-order timeline entries")
	cmd.Flags().StringVar(&cfg.Ranker, "ranker", "", "JavaScript ranker expression (overrides the scenario's)")
	cmd.Flags().BoolVar(&cfg.Save, "save", false, "Save the run and its timeline to the database")
	cmd.Flags().BoolVarP(&cfg.Quiet, "quiet", "q", false, "Print only the summary")

	return cmd
}

// simulation bundles the outcome of one scheduling run.
type simulation struct {
	scenario *sim.Scenario
	summary  *model.RunSummary
	timeline *timeline.NightlyTimeline
	metrics  *prometheus.Registry
}

// simulate wires the scenario collaborators into an engine and runs it.
// The returned error joins every failed (night, site) run; the simulation
// still carries the partial results.
func simulate(ctx context.Context, cfg config.RunConfig, logger *slog.Logger) (*simulation, error) {
	sc, err := sim.LoadScenario(cfg.Scenario)
	if err != nil {
		return nil, err
	}

	collector := sim.NewCollector(sc)
	selector := sim.NewSelector(collector, logger)

	var rk scp.Ranker = ranker.Default{}
	expr := sc.Ranker.Expression
	if cfg.Ranker != "" {
		expr = cfg.Ranker
	}
	if expr != "" {
		rk, err = ranker.NewExpr(expr, ranker.Default{}, logger)
		if err != nil {
			return nil, err
		}
	}

	pipeline := scp.New(collector, selector, sim.NewGreedyOptimizer(), rk)

	nights := make([]model.NightIndex, collector.NumNights())
	for i := range nights {
		nights[i] = model.NightIndex(i)
	}

	reg := prometheus.NewRegistry()
	opts := []engine.Option{engine.WithMetrics(telemetry.NewMetrics(reg))}
	if cfg.Strict {
		opts = append(opts, engine.WithStrictTimeline())
	}

	eng, err := engine.New(
		engine.Params{Sites: collector.Sites(), Nights: nights, Lookahead: cfg.Lookahead},
		engine.Deps{Collector: collector, Selector: selector, Planner: pipeline, Events: collector},
		logger, opts...)
	if err != nil {
		return nil, err
	}

	summary, tl, runErr := eng.Run(ctx)
	if summary == nil {
		return nil, runErr
	}
	return &simulation{scenario: sc, summary: summary, timeline: tl, metrics: reg}, runErr
}

func runScenario(ctx context.Context, cfg config.RunConfig, out io.Writer, logger *slog.Logger) error {
	res, runErr := simulate(ctx, cfg, logger)
	if res == nil {
		return runErr
	}

	if !cfg.Quiet {
		res.timeline.Display(out)
		fmt.Fprintln(out)
	}
	printSummary(out, res.summary)

	if cfg.Save {
		id, err := saveRun(ctx, cfg, res, logger)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		fmt.Fprintf(out, "\nRun saved: %s\n", id)
	}

	if runErr != nil {
		return fmt.Errorf("%d night run(s) failed: %w", res.summary.Failed, runErr)
	}
	return nil
}

func saveRun(ctx context.Context, cfg config.RunConfig, res *simulation, logger *slog.Logger) (string, error) {
	dbPath, err := config.ResolveDBPath(cfg.DBPath)
	if err != nil {
		return "", err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return "", fmt.Errorf("migrate database: %w", err)
	}

	run := &model.Run{
		ID:        "run_" + uuid.New().String(),
		Scenario:  res.scenario.Name,
		Source:    cfg.Scenario,
		Sites:     res.scenario.SiteNames(),
		NumNights: res.scenario.NumNights(),
		Summary:   res.summary,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return "", err
	}
	if err := st.SaveTimeline(ctx, run.ID, res.timeline.Records()); err != nil {
		return "", err
	}
	logger.Info("run saved", "id", run.ID, "db", dbPath)
	return run.ID, nil
}

func printSummary(out io.Writer, s *model.RunSummary) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NIGHT\tSITE\tENTRIES\tRECOMPUTES\tBLOCKED\tVISITS\tOBSERVED\tUTIL\tANOMALIES\tSTATUS")
	for _, n := range s.Nights {
		status := "ok"
		if n.Failed {
			status = "FAILED: " + n.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d/%d\t%.0f%%\t%d\t%s\n",
			n.Night+1, n.Site, n.Entries, n.Recomputes, n.BlockedEntries, n.Visits,
			n.ObservedSlots, n.NightSlots, n.Utilization()*100, n.Anomalies, status)
	}
	tw.Flush()
	fmt.Fprintf(out, "\nTotal: %d recomputes, %d visits, %d slots observed, %d anomalies, %d failed\n",
		s.Recomputes, s.Visits, s.ObservedSlots, s.Anomalies, s.Failed)
}
