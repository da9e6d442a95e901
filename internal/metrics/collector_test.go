package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/randomizedcoder/go-suite-runner/internal/supervisor"
)

func newTestCollector() *Collector {
	return NewCollector(CollectorConfig{Version: "test", Catalog: "built-in", Workers: 4})
}

func TestNewCollector_Info(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		mode    string
	}{
		{"sequential", 1, "sequential"},
		{"pool", 4, "concurrent/4"},
		{"per cpu", 0, "concurrent/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(CollectorConfig{Version: "v1", Catalog: "cat.yaml", Workers: tt.workers})
			got := testutil.ToFloat64(c.info.WithLabelValues("v1", "cat.yaml", tt.mode))
			if got != 1 {
				t.Errorf("info{mode=%q} = %v, want 1", tt.mode, got)
			}
		})
	}
}

func TestCollector_OutcomesInitialised(t *testing.T) {
	c := newTestCollector()
	if n := testutil.CollectAndCount(c.groupsTotal); n != len(supervisor.Outcomes) {
		t.Errorf("groups_total series = %d, want %d", n, len(supervisor.Outcomes))
	}
}

func TestCollector_GroupLifecycle(t *testing.T) {
	c := newTestCollector()

	c.GroupStarted("core")
	c.GroupStarted("lib")
	if got := testutil.ToFloat64(c.active); got != 2 {
		t.Errorf("active_groups = %v, want 2", got)
	}

	c.GroupFinished(supervisor.Result{Section: "core", Outcome: supervisor.OutcomeSuccess, Duration: 2 * time.Second})
	c.GroupFinished(supervisor.Result{Section: "lib", Outcome: supervisor.OutcomeFailure, Status: 3, Duration: 40 * time.Second})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"active", testutil.ToFloat64(c.active), 0},
		{"success", testutil.ToFloat64(c.groupsTotal.WithLabelValues("success")), 1},
		{"failure", testutil.ToFloat64(c.groupsTotal.WithLabelValues("failure")), 1},
		{"interrupted", testutil.ToFloat64(c.groupsTotal.WithLabelValues("interrupted")), 0},
		{"lib status", testutil.ToFloat64(c.groupStatus.WithLabelValues("lib")), 3},
		{"core status", testutil.ToFloat64(c.groupStatus.WithLabelValues("core")), 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if c.PeakActive() != 2 {
		t.Errorf("PeakActive() = %d, want 2", c.PeakActive())
	}
	if c.Finished(supervisor.OutcomeFailure) != 1 {
		t.Errorf("Finished(failure) = %d", c.Finished(supervisor.OutcomeFailure))
	}
}

func TestCollector_FinishWithoutStart(t *testing.T) {
	c := newTestCollector()
	c.GroupFinished(supervisor.Result{Section: "x", Outcome: supervisor.OutcomeInterrupted})
	if got := testutil.ToFloat64(c.active); got != 0 {
		t.Errorf("active_groups = %v, must not go negative", got)
	}
}

func TestCollector_PlannedAndCoverage(t *testing.T) {
	c := newTestCollector()
	c.SetPlanned(12, 2)
	c.RecordCoverage(nil)
	c.RecordCoverage(errors.New("boom"))

	if got := testutil.ToFloat64(c.planned); got != 12 {
		t.Errorf("groups_planned = %v", got)
	}
	if got := testutil.ToFloat64(c.notRun); got != 2 {
		t.Errorf("groups_not_run = %v", got)
	}
	if got := testutil.ToFloat64(c.coverageTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("coverage_merges_total{error} = %v", got)
	}
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := newTestCollector()
	b := newTestCollector()
	a.GroupFinished(supervisor.Result{Section: "core", Outcome: supervisor.OutcomeSuccess})

	if got := testutil.ToFloat64(b.groupsTotal.WithLabelValues("success")); got != 0 {
		t.Errorf("second collector sees %v successes", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector(CollectorConfig{Version: "v1", Catalog: "built-in", Workers: 1, RuntimeMetrics: true})
	c.GroupFinished(supervisor.Result{Section: "core", Outcome: supervisor.OutcomeSuccess, Duration: time.Second})

	path := filepath.Join(t.TempDir(), "suite.prom")
	if err := WriteTextfile(path, c.Registry()); err != nil {
		t.Fatalf("WriteTextfile() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)

	for _, want := range []string{
		`suite_runner_groups_total{outcome="success"} 1`,
		`suite_runner_group_exit_status{group="core"} 0`,
		"# TYPE suite_runner_group_duration_seconds histogram",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
	if strings.Contains(text, "go_goroutines") || strings.Contains(text, "process_") {
		t.Error("runtime families should be excluded")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestServer(t *testing.T) {
	c := newTestCollector()
	c.GroupStarted("core")

	s := NewServer("127.0.0.1:0", c.Registry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Shutdown(context.Background())

	tests := []struct {
		path string
		want string
	}{
		{"/metrics", "suite_runner_active_groups 1"},
		{"/healthz", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get("http://" + s.Addr() + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), tt.want) {
				t.Errorf("GET %s = %d %q, want %q", tt.path, resp.StatusCode, body, tt.want)
			}
		})
	}
}

func TestServer_BindError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", newTestCollector().Registry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start(); err == nil {
		s.Shutdown(context.Background())
		t.Fatal("Start() should fail for an invalid address")
	}
}
