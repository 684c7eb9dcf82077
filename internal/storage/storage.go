// Package storage keeps a JSON report of each run next to the exported
// workbooks, one file per window date.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/maltedev/listing-harvester/internal/models"
)

type Report struct {
	Run        models.RunInfo                    `json:"run"`
	Categories map[string]*models.CategoryReport `json:"categories"`
}

// ReportStore implements pipeline.Recorder.
type ReportStore struct {
	mu       sync.RWMutex
	dir      string
	filename string
	report   Report
	logger   *slog.Logger
}

func NewReportStore(dir string, logger *slog.Logger) (*ReportStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	return &ReportStore{
		dir:    dir,
		report: Report{Categories: make(map[string]*models.CategoryReport)},
		logger: logger.With("component", "report"),
	}, nil
}

// Path returns the report file of the current run, or "" before RunStarted.
func (rs *ReportStore) Path() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.filename
}

// RunStarted picks the report file for the run's window. Category entries of an
// earlier run for the same window are kept so a rerun completes the report.
func (rs *ReportStore) RunStarted(ctx context.Context, run models.RunInfo) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.filename = ReportPath(rs.dir, run.Window)
	rs.report = Report{Categories: make(map[string]*models.CategoryReport)}
	if err := rs.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		rs.logger.Warn("ignoring unreadable report", "path", rs.filename, "error", err)
		rs.report = Report{Categories: make(map[string]*models.CategoryReport)}
	}
	rs.report.Run = run
	return rs.save()
}

func (rs *ReportStore) CategoryDone(ctx context.Context, rep models.CategoryReport) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.filename == "" {
		return fmt.Errorf("run not started")
	}
	rs.report.Categories[rep.Category] = &rep
	return rs.save()
}

func (rs *ReportStore) RunFinished(ctx context.Context, run models.RunInfo) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.filename == "" {
		return fmt.Errorf("run not started")
	}
	rs.report.Run = run
	if err := rs.save(); err != nil {
		return err
	}
	rs.logger.Info("report written", "path", rs.filename, "categories", len(rs.report.Categories))
	return nil
}

// Pending lists the categories of the current window that have no uploaded or
// empty result yet, sorted by name.
func (rs *ReportStore) Pending(all []string) []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.report.Pending(all)
}

// Pending returns the names in all that still need a harvest: never reported,
// failed, or not uploaded. The result is sorted.
func (r *Report) Pending(all []string) []string {
	var pending []string
	for _, name := range all {
		rep, ok := r.Categories[name]
		if !ok || (rep.Status != models.StatusUploaded && rep.Status != models.StatusEmpty) {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending
}

// ReportPath returns where the report for window date lives under dir.
func ReportPath(dir, date string) string {
	return filepath.Join(dir, date+".json")
}

func (rs *ReportStore) GetStats() map[string]int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	stats := make(map[string]int)
	for _, rep := range rs.report.Categories {
		stats[string(rep.Status)]++
	}
	stats["total"] = len(rs.report.Categories)
	return stats
}

func (rs *ReportStore) save() error {
	data, err := json.MarshalIndent(rs.report, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := rs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, rs.filename)
}

func (rs *ReportStore) load() error {
	data, err := os.ReadFile(rs.filename)
	if err != nil {
		return err
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return err
	}
	if report.Categories != nil {
		rs.report.Categories = report.Categories
	}
	return nil
}

// Load reads a report file.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &report, nil
}
