// internal/storage/archive/archiver.go
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remora/internal/core"
)

// CycleReport is the archived outcome of one analysis cycle. Reasoning
// fields stay empty when the cycle stopped before the oracle call.
type CycleReport struct {
	Symbol         string                  `json:"symbol"`
	Interval       string                  `json:"interval,omitempty"`
	CycleAt        time.Time               `json:"cycle_at"`
	SnapshotID     int64                   `json:"snapshot_id,omitempty"`
	Snapshot       *core.IndicatorSnapshot `json:"snapshot,omitempty"`
	Assessment     *core.SignalAssessment  `json:"assessment,omitempty"`
	Events         []string                `json:"events,omitempty"`
	Recommendation *core.Recommendation    `json:"recommendation,omitempty"`
	RawResponse    string                  `json:"raw_response,omitempty"`
	Provider       string                  `json:"provider,omitempty"`
	StrategyID     int64                   `json:"strategy_id,omitempty"`
}

// ExecutionRecord pairs a strategy with the result of executing it.
type ExecutionRecord struct {
	RecordedAt time.Time            `json:"recorded_at"`
	Strategy   core.Strategy        `json:"strategy"`
	Result     core.ExecutionResult `json:"result"`
}

// Archiver writes and reads the JSON audit records on top of a backend.
type Archiver struct {
	storage Storage
}

// NewArchiver creates an Archiver over the given backend.
func NewArchiver(storage Storage) *Archiver {
	return &Archiver{storage: storage}
}

// SaveReport archives a cycle report and returns the path written.
func (a *Archiver) SaveReport(ctx context.Context, report CycleReport) (string, error) {
	if report.Symbol == "" {
		return "", fmt.Errorf("archive: report symbol required")
	}
	if report.CycleAt.IsZero() {
		report.CycleAt = time.Now().UTC()
	}

	path := reportPath(report.Symbol, report.CycleAt)
	if err := a.writeJSON(ctx, path, report); err != nil {
		return "", err
	}
	return path, nil
}

// ReadReport loads one archived cycle report.
func (a *Archiver) ReadReport(ctx context.Context, path string) (*CycleReport, error) {
	var report CycleReport
	if err := a.readJSON(ctx, path, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns the archived report paths for a symbol, or for all
// symbols when symbol is empty.
func (a *Archiver) ListReports(ctx context.Context, symbol string) ([]string, error) {
	prefix := "reports"
	if symbol != "" {
		prefix = "reports/" + symbol
	}
	return a.storage.List(ctx, prefix)
}

// SaveExecution archives an execution record and returns the path written.
func (a *Archiver) SaveExecution(ctx context.Context, record ExecutionRecord) (string, error) {
	if record.Strategy.ID == 0 {
		return "", fmt.Errorf("archive: execution record needs a persisted strategy")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	path := executionPath(record.Strategy.Ticket(), record.RecordedAt)
	if err := a.writeJSON(ctx, path, record); err != nil {
		return "", err
	}
	return path, nil
}

// ReadExecution loads one archived execution record.
func (a *Archiver) ReadExecution(ctx context.Context, path string) (*ExecutionRecord, error) {
	var record ExecutionRecord
	if err := a.readJSON(ctx, path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListExecutions returns all archived execution record paths.
func (a *Archiver) ListExecutions(ctx context.Context) ([]string, error) {
	return a.storage.List(ctx, "executions")
}

func (a *Archiver) writeJSON(ctx context.Context, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", path, err)
	}
	if err := a.storage.Write(ctx, path, data); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	return nil
}

func (a *Archiver) readJSON(ctx context.Context, path string, v any) error {
	data, err := a.storage.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("archive: decode %s: %w", path, err)
	}
	return nil
}

// stampLayout keeps archived paths lexicographically sorted by time.
const stampLayout = "20060102T150405Z"

func reportPath(symbol string, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s.json", symbol, at.UTC().Format(stampLayout))
}

func executionPath(ticket string, at time.Time) string {
	return fmt.Sprintf("executions/%s_%s.json", ticket, at.UTC().Format(stampLayout))
}
