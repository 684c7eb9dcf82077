// Package pipeline takes finished categories from the scheduler and turns
// them into uploaded workbooks and run bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/scheduler"
	"github.com/maltedev/listing-harvester/internal/window"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

type Exporter interface {
	WriteCategory(name string, brands []models.BrandRecords) (string, error)
}

type Uploader interface {
	Upload(ctx context.Context, path, folder string) (string, error)
}

// Recorder keeps track of a run. Recorder errors are logged, never fatal.
type Recorder interface {
	RunStarted(ctx context.Context, run models.RunInfo) error
	CategoryDone(ctx context.Context, rep models.CategoryReport) error
	RunFinished(ctx context.Context, run models.RunInfo) error
}

type Options struct {
	// RemoveAfterUpload deletes the local workbook once it is uploaded.
	RemoveAfterUpload bool
}

// Stage implements scheduler.Sink.
type Stage struct {
	runID     string
	window    window.Window
	exporter  Exporter
	uploader  Uploader
	recorders []Recorder
	opts      Options
	now       func() time.Time
	logger    *slog.Logger
}

var _ scheduler.Sink = (*Stage)(nil)

// NewStage builds a stage for one run. A nil uploader keeps workbooks local.
func NewStage(runID string, w window.Window, exporter Exporter, uploader Uploader, opts Options, logger *slog.Logger, recorders ...Recorder) *Stage {
	return &Stage{
		runID:     runID,
		window:    w,
		exporter:  exporter,
		uploader:  uploader,
		recorders: recorders,
		opts:      opts,
		now:       time.Now,
		logger:    logger.With("component", "pipeline", "run_id", runID),
	}
}

func (s *Stage) Start(ctx context.Context, run models.RunInfo) {
	for _, r := range s.recorders {
		if err := r.RunStarted(ctx, run); err != nil {
			s.logger.Warn("recorder failed on run start", "error", err)
		}
	}
}

func (s *Stage) Finish(ctx context.Context, run models.RunInfo) {
	for _, r := range s.recorders {
		if err := r.RunFinished(ctx, run); err != nil {
			s.logger.Warn("recorder failed on run finish", "error", err)
		}
	}
}

// Deliver exports and uploads every category of the chunk in order. Only an
// authentication failure is returned; everything else is reported and the
// run goes on.
func (s *Stage) Deliver(ctx context.Context, chunk int, outcomes []scheduler.Outcome) error {
	log := s.logger.With("chunk", chunk)

	for _, o := range outcomes {
		rep, fatal := s.process(ctx, o)
		log.Info("category processed",
			"category", rep.Category,
			"status", rep.Status,
			"kept", rep.ListingsKept,
			"undated", rep.Undated,
			"file", rep.File,
			"error", rep.Error)

		for _, r := range s.recorders {
			if err := r.CategoryDone(ctx, rep); err != nil {
				log.Warn("recorder failed", "category", rep.Category, "error", err)
			}
		}

		if fatal != nil {
			return fatal
		}
	}
	return nil
}

func (s *Stage) process(ctx context.Context, o scheduler.Outcome) (models.CategoryReport, error) {
	rep := models.CategoryReport{
		RunID:        s.runID,
		Category:     o.Category.Name,
		Window:       s.window.Date,
		Brands:       len(o.Result.Brands),
		ListingsSeen: o.Result.ListingsSeen,
		ListingsKept: o.Result.ListingsKept,
		Unresolved:   o.Result.UnresolvedSeen,
		Undated:      o.Result.UndatedSeen,
		Duration:     o.Duration,
		FinishedAt:   s.now(),
	}

	if o.Err != nil {
		rep.Status = models.StatusFailed
		rep.Error = o.Err.Error()
		return rep, nil
	}
	if len(o.Result.Brands) == 0 {
		rep.Status = models.StatusEmpty
		return rep, nil
	}

	path, err := s.exporter.WriteCategory(o.Category.DisplayName(), o.Result.Brands)
	if err != nil {
		rep.Status = models.StatusExportFailed
		rep.Error = err.Error()
		return rep, nil
	}
	if path == "" {
		rep.Status = models.StatusEmpty
		return rep, nil
	}
	rep.File = path

	if s.uploader == nil {
		rep.Status = models.StatusExported
		return rep, nil
	}

	fileID, err := s.uploader.Upload(ctx, path, s.window.Date)
	if err != nil {
		rep.Status = models.StatusUploadFailed
		rep.Error = err.Error()
		if herrors.IsAuthentication(err) {
			return rep, err
		}
		s.logger.Error("upload failed, keeping local file", "category", rep.Category, "path", path, "error", err)
		return rep, nil
	}
	rep.Status = models.StatusUploaded
	rep.FileID = fileID

	if s.opts.RemoveAfterUpload {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove local file", "path", path, "error", err)
		} else {
			s.logger.Debug("removed local file", "path", path)
		}
	}
	return rep, nil
}
