package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/efebarandurmaz/recall/internal/service"
)

type fakeSearcher struct {
	fail    map[string]bool
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, req service.QueryRequest) (*service.QueryResponse, error) {
	f.queries = append(f.queries, req.Query)
	if f.fail[req.Query] {
		return nil, errors.New("search unavailable")
	}
	return &service.QueryResponse{Results: []service.ResultItem{{ErrorID: "E1", SimilarityScore: 0.9}}}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAlertStepsPrepare(t *testing.T) {
	alertsDir := t.TempDir()
	dataDir := filepath.Join(t.TempDir(), "data")

	writeFile(t, filepath.Join(alertsDir, "b.log"), "\n  disk pressure on node-3  \n\nkubelet evicting pods\n")
	writeFile(t, filepath.Join(alertsDir, "a.log"), "OOMKilled in payments")
	writeFile(t, filepath.Join(alertsDir, "empty.log"), "\n\n")
	writeFile(t, filepath.Join(alertsDir, ".hidden"), "ignored")
	if err := os.Mkdir(filepath.Join(alertsDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	steps := &AlertSteps{DataDir: dataDir, AlertsDir: alertsDir, Logger: quietLogger()}
	alerts, err := steps.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2: %+v", len(alerts), alerts)
	}
	if alerts[0].Name != "a.log" || alerts[1].Name != "b.log" {
		t.Errorf("alerts not sorted: %s, %s", alerts[0].Name, alerts[1].Name)
	}
	if alerts[1].Query != "disk pressure on node-3\nkubelet evicting pods" {
		t.Errorf("query = %q", alerts[1].Query)
	}
	if fi, err := os.Stat(filepath.Join(dataDir, FailedLogsDir)); err != nil || !fi.IsDir() {
		t.Errorf("failed logs dir not created: %v", err)
	}
}

func TestAlertStepsPrepareMissingDir(t *testing.T) {
	steps := &AlertSteps{DataDir: t.TempDir(), AlertsDir: filepath.Join(t.TempDir(), "nope"), Logger: quietLogger()}
	alerts, err := steps.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("got %d alerts, want 0", len(alerts))
	}
}

func TestAlertStepsPrepareTruncatesLongAlert(t *testing.T) {
	alertsDir := t.TempDir()
	writeFile(t, filepath.Join(alertsDir, "big.log"), strings.Repeat("x", maxQueryBytes*2))

	steps := &AlertSteps{DataDir: t.TempDir(), AlertsDir: alertsDir, Logger: quietLogger()}
	alerts, err := steps.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(alerts) != 1 || len(alerts[0].Query) != maxQueryBytes {
		t.Fatalf("unexpected alerts: %d", len(alerts))
	}
}

func TestAlertStepsProcess(t *testing.T) {
	dataDir := t.TempDir()
	if err := SetupDataDirs(dataDir); err != nil {
		t.Fatal(err)
	}
	searcher := &fakeSearcher{fail: map[string]bool{"bad": true}}
	steps := &AlertSteps{DataDir: dataDir, Searcher: searcher, Logger: quietLogger()}

	alerts := []Alert{
		{Name: "good.log", Path: "/alerts/good.log", Query: "good"},
		{Name: "bad.log", Path: "/alerts/bad.log", Query: "bad"},
	}
	if err := steps.Process(context.Background(), alerts); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(searcher.queries) != 2 {
		t.Errorf("searcher called %d times, want 2", len(searcher.queries))
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "matches", "good.log.json"))
	if err != nil {
		t.Fatalf("reading matches: %v", err)
	}
	var resp service.QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ErrorID != "E1" {
		t.Errorf("unexpected matches: %+v", resp.Results)
	}

	failed, err := os.ReadFile(filepath.Join(dataDir, FailedLogsDir, "bad.log.log"))
	if err != nil {
		t.Fatalf("failed alert not recorded: %v", err)
	}
	if !strings.Contains(string(failed), "search unavailable") {
		t.Errorf("failure record missing cause: %s", failed)
	}
}

func TestAlertStepsProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps := &AlertSteps{DataDir: t.TempDir(), Searcher: &fakeSearcher{}, Logger: quietLogger()}
	err := steps.Process(ctx, []Alert{{Name: "a", Query: "q"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
