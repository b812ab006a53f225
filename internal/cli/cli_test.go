package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/me/nightsched/internal/config"
	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/internal/server"
	"github.com/me/nightsched/internal/store"
	"github.com/me/nightsched/pkg/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scenarioPath() string {
	return filepath.Join("..", "..", "scenarios", "two_sites.yaml")
}

// startTestServer serves the SQLite database at dbPath and returns the URL.
func startTestServer(t *testing.T, dbPath string) string {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(dbPath, srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ts := httptest.NewServer(server.New(config.DefaultServerConfig(), st, srvLogger).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	return buf.String(), err
}

func TestRunCommand(t *testing.T) {
	output, err := runCLI(t, "run", scenarioPath())
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, output)
	}
	for _, want := range []string{
		"+++++ NIGHT 1 +++++",
		"+++++ NIGHT 2 +++++",
		"Triggered by event",
		"Final plan after event",
		"NIGHT  SITE",
		"Total:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRunCommand_Quiet(t *testing.T) {
	output, err := runCLI(t, "run", scenarioPath(), "--quiet")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if strings.Contains(output, "+++++ NIGHT") {
		t.Errorf("quiet run printed the timeline: %s", output)
	}
	if !strings.Contains(output, "Total:") {
		t.Errorf("expected summary in output, got: %s", output)
	}
}

func TestRunCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing scenario", []string{"run", "does-not-exist.yaml"}, "read scenario"},
		{"bad ranker", []string{"run", scenarioPath(), "--ranker", "obs.("}, "ranker"},
		{"no args", []string{"run"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSaveRunsAndShow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nightsched.db")

	output, err := runCLI(t, "--db", dbPath, "run", scenarioPath(), "--save", "--quiet")
	if err != nil {
		t.Fatalf("run --save error: %v\noutput: %s", err, output)
	}
	m := regexp.MustCompile(`Run saved: (run_[0-9a-f-]+)`).FindStringSubmatch(output)
	if m == nil {
		t.Fatalf("expected 'Run saved: run_' in output, got: %s", output)
	}
	runID := m[1]

	url := startTestServer(t, dbPath)

	output, err = runCLI(t, "--server", url, "runs")
	if err != nil {
		t.Fatalf("runs error: %v", err)
	}
	if !strings.Contains(output, runID) || !strings.Contains(output, "two-sites") {
		t.Errorf("expected run in listing, got: %s", output)
	}

	output, err = runCLI(t, "--server", url, "show", runID, "--night", "1", "--site", "GN")
	if err != nil {
		t.Fatalf("show error: %v", err)
	}
	for _, want := range []string{runID, "two_sites.yaml", "EVENING_TWILIGHT", "MORNING_TWILIGHT", "(final)"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "GS ") {
		t.Errorf("site filter ignored: %s", output)
	}
}

func TestRunCommand_SaveUsesDBFromEnv(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("NIGHTSCHED_DB", dbPath)

	if output, err := runCLI(t, "run", scenarioPath(), "--save", "--quiet"); err != nil {
		t.Fatalf("run --save error: %v\noutput: %s", err, output)
	}

	st, err := store.NewSQLiteStore(dbPath, logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	_, total, err := st.ListRuns(context.Background(), model.DefaultListOptions())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 1 {
		t.Errorf("runs in %s = %d, want 1", dbPath, total)
	}
}

func TestRootCmd_UnknownLogFormat(t *testing.T) {
	_, err := runCLI(t, "--log-format", "xml", "run", scenarioPath())
	if err == nil || !strings.Contains(err.Error(), "unknown log format") {
		t.Errorf("error = %v, want unknown log format", err)
	}
}

func TestShowCommand_NotFound(t *testing.T) {
	url := startTestServer(t, ":memory:")
	_, err := runCLI(t, "--server", url, "show", "run_missing")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestRunsCommand_Empty(t *testing.T) {
	url := startTestServer(t, ":memory:")
	output, err := runCLI(t, "--server", url, "runs")
	if err != nil {
		t.Fatalf("runs error: %v", err)
	}
	if !strings.Contains(output, "No runs found.") {
		t.Errorf("got: %s", output)
	}
}

func TestSimulate(t *testing.T) {
	cfg := config.DefaultRunConfig()
	cfg.Scenario = scenarioPath()

	res, err := simulate(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.summary.Failed != 0 {
		t.Errorf("failed = %d, want 0", res.summary.Failed)
	}
	if len(res.summary.Nights) != 4 {
		t.Errorf("night summaries = %d, want 4", len(res.summary.Nights))
	}
	if res.summary.Recomputes == 0 {
		t.Error("expected recomputes")
	}

	n, err := testutil.GatherAndCount(res.metrics, "nightsched_recomputes_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Errorf("recompute series = %d, want one per site", n)
	}

	for _, night := range res.timeline.Nights() {
		for _, site := range res.timeline.Sites(night) {
			entries := res.timeline.Entries(night, site)
			last := entries[len(entries)-1]
			if !last.Final {
				t.Errorf("night %d site %s: last entry is not final", night, site)
			}
		}
	}
}
