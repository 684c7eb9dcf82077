// Package scheduler drives categories through the harvester in chunks, with a
// bounded number of categories in flight at any time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/window"
)

type Config struct {
	ChunkSize    int
	MaxParallel  int
	StaggerDelay time.Duration
	ChunkDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    2,
		MaxParallel:  2,
		StaggerDelay: 2 * time.Second,
		ChunkDelay:   10 * time.Second,
	}
}

type Harvester interface {
	HarvestCategory(ctx context.Context, cat models.Category, w window.Window) (models.CategoryResult, error)
}

// Sink receives each finished chunk before the next one starts. A returned
// error aborts the run.
type Sink interface {
	Deliver(ctx context.Context, chunk int, outcomes []Outcome) error
}

// Observer is told about category progress. Calls may come from several goroutines.
type Observer interface {
	CategoryStarted(category string)
	CategoryFinished(o Outcome)
}

// Outcome is the result of one category, failed or not.
type Outcome struct {
	Category models.Category
	Result   models.CategoryResult
	Err      error
	Duration time.Duration
}

type Summary struct {
	Chunks     int
	Categories int
	Succeeded  int
	Failed     []string
	Empty      []string
	Kept       int
}

type Scheduler struct {
	cfg       Config
	harvester Harvester
	sink      Sink
	observers []Observer
	sem       *semaphore.Weighted
	logger    *slog.Logger
}

func New(cfg Config, harvester Harvester, sink Sink, logger *slog.Logger, observers ...Observer) (*Scheduler, error) {
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be at least 1, got %d", cfg.ChunkSize)
	}
	if cfg.MaxParallel < 1 {
		return nil, fmt.Errorf("max parallel must be at least 1, got %d", cfg.MaxParallel)
	}

	return &Scheduler{
		cfg:       cfg,
		harvester: harvester,
		sink:      sink,
		observers: observers,
		sem:       semaphore.NewWeighted(int64(cfg.MaxParallel)),
		logger:    logger.With("component", "scheduler"),
	}, nil
}

// Run harvests every category for window w. Categories in a chunk run
// concurrently; chunks run one after another, each delivered to the sink
// before the pause that precedes the next.
func (s *Scheduler) Run(ctx context.Context, categories []models.Category, w window.Window) (Summary, error) {
	chunks := Chunk(categories, s.cfg.ChunkSize)
	summary := Summary{Chunks: len(chunks), Categories: len(categories)}

	s.logger.Info("run started",
		"categories", len(categories),
		"chunks", len(chunks),
		"max_parallel", s.cfg.MaxParallel,
		"window", w.Date)

	for i, chunk := range chunks {
		if i > 0 {
			s.logger.Info("waiting before next chunk", "delay", s.cfg.ChunkDelay, "next_chunk", i+1)
			if err := sleep(ctx, s.cfg.ChunkDelay); err != nil {
				return summary, err
			}
		}

		outcomes := s.runChunk(ctx, i+1, chunk, w)
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				summary.Failed = append(summary.Failed, o.Category.Name)
			case len(o.Result.Brands) == 0:
				summary.Succeeded++
				summary.Empty = append(summary.Empty, o.Category.Name)
			default:
				summary.Succeeded++
				summary.Kept += o.Result.ListingsKept
			}
		}

		if err := s.sink.Deliver(ctx, i+1, outcomes); err != nil {
			s.logger.Error("chunk delivery failed, aborting run", "chunk", i+1, "error", err)
			return summary, fmt.Errorf("deliver chunk %d: %w", i+1, err)
		}

		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	s.logger.Info("run finished",
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failed),
		"empty", len(summary.Empty),
		"kept", summary.Kept)
	return summary, nil
}

func (s *Scheduler) runChunk(ctx context.Context, idx int, chunk []models.Category, w window.Window) []Outcome {
	s.logger.Info("chunk started", "chunk", idx, "categories", len(chunk))

	outcomes := make([]Outcome, len(chunk))
	var wg sync.WaitGroup

	for i, cat := range chunk {
		if i > 0 {
			if err := sleep(ctx, s.cfg.StaggerDelay); err != nil {
				for j := i; j < len(chunk); j++ {
					outcomes[j] = Outcome{Category: chunk[j], Err: err}
				}
				break
			}
		}

		wg.Add(1)
		go func(i int, cat models.Category) {
			defer wg.Done()
			outcomes[i] = s.runCategory(ctx, cat, w)
		}(i, cat)
	}

	wg.Wait()
	return outcomes
}

func (s *Scheduler) runCategory(ctx context.Context, cat models.Category, w window.Window) (o Outcome) {
	o.Category = cat
	log := s.logger.With("category", cat.Name)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		o.Err = err
		return o
	}
	defer s.sem.Release(1)

	start := time.Now()
	for _, obs := range s.observers {
		obs.CategoryStarted(cat.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("panic in category %s: %v", cat.Name, r)
			log.Error("category panicked", "panic", r, "stack", string(debug.Stack()))
		}
		o.Duration = time.Since(start)
		for _, obs := range s.observers {
			obs.CategoryFinished(o)
		}
	}()

	log.Info("category started", "url", cat.URL)
	res, err := s.harvester.HarvestCategory(ctx, cat, w)
	o.Result = res
	if err != nil {
		o.Err = err
		log.Error("category failed", "error", err)
		return o
	}

	if len(res.Brands) == 0 {
		log.Info("category has no listings in window", "listings_seen", res.ListingsSeen)
	} else {
		log.Info("category finished", "brands", len(res.Brands), "kept", res.ListingsKept)
	}
	return o
}

// Chunk splits categories into consecutive groups of at most size.
func Chunk(categories []models.Category, size int) [][]models.Category {
	if size < 1 {
		size = 1
	}
	var chunks [][]models.Category
	for start := 0; start < len(categories); start += size {
		end := min(start+size, len(categories))
		chunks = append(chunks, categories[start:end])
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
