package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/efebarandurmaz/recall/internal/service"
)

// FailedLogsDir is where alerts that could not be processed are recorded,
// relative to the data directory.
const FailedLogsDir = "logs/failed"

// maxQueryBytes bounds the alert text sent as a query.
const maxQueryBytes = 4096

// Searcher queries the search service. client.Client implements it.
type Searcher interface {
	Search(ctx context.Context, req service.QueryRequest) (*service.QueryResponse, error)
}

// Alert is one alert log file.
type Alert struct {
	Name  string
	Path  string
	Query string
}

// AlertSteps prepares alert files and matches each against known incidents.
type AlertSteps struct {
	DataDir   string
	AlertsDir string
	Searcher  Searcher
	Logger    *slog.Logger
}

func (a *AlertSteps) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Steps returns the pipeline steps.
func (a *AlertSteps) Steps() Steps[[]Alert] {
	return Steps[[]Alert]{Prepare: a.Prepare, Process: a.Process}
}

// SetupDataDirs creates the directory tree used while processing.
func SetupDataDirs(dataDir string) error {
	for _, dir := range []string{filepath.Join(dataDir, FailedLogsDir), filepath.Join(dataDir, "matches")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Prepare creates data directories and loads every alert file in AlertsDir,
// sorted by name. A missing alerts directory yields no alerts.
func (a *AlertSteps) Prepare(ctx context.Context) ([]Alert, error) {
	if err := SetupDataDirs(a.DataDir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(a.AlertsDir)
	if os.IsNotExist(err) {
		a.logger().Warn("alerts directory does not exist", "dir", a.AlertsDir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading alerts: %w", err)
	}

	var alerts []Alert
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(a.AlertsDir, e.Name())
		query, err := readQuery(path)
		if err != nil {
			return nil, err
		}
		if query == "" {
			continue
		}
		alerts = append(alerts, Alert{Name: e.Name(), Path: path, Query: query})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Name < alerts[j].Name })

	a.logger().Info("alerts loaded", "count", len(alerts), "dir", a.AlertsDir)
	return alerts, nil
}

func readQuery(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening alert: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() && b.Len() < maxQueryBytes {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading alert %s: %w", path, err)
	}
	q := b.String()
	if len(q) > maxQueryBytes {
		q = q[:maxQueryBytes]
	}
	return q, nil
}

// Process queries the service for each alert and writes matches to
// DataDir/matches/<alert>.json. Alerts whose query fails are recorded under
// DataDir/logs/failed and do not stop the run.
func (a *AlertSteps) Process(ctx context.Context, alerts []Alert) error {
	var failed int
	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := a.Searcher.Search(ctx, service.QueryRequest{Query: alert.Query})
		if err != nil {
			failed++
			a.logger().Warn("alert query failed", "alert", alert.Name, "error", err)
			if werr := a.recordFailure(alert, err); werr != nil {
				return werr
			}
			continue
		}
		if err := writeJSON(filepath.Join(a.DataDir, "matches", alert.Name+".json"), resp); err != nil {
			return err
		}
	}
	a.logger().Info("alerts processed", "total", len(alerts), "failed", failed)
	return nil
}

func (a *AlertSteps) recordFailure(alert Alert, cause error) error {
	path := filepath.Join(a.DataDir, FailedLogsDir, alert.Name+".log")
	content := fmt.Sprintf("alert: %s\nerror: %v\n\n%s\n", alert.Path, cause, alert.Query)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("recording failed alert: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
