package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/listing-harvester/internal/api"
	"github.com/maltedev/listing-harvester/internal/browser"
	"github.com/maltedev/listing-harvester/internal/cache"
	"github.com/maltedev/listing-harvester/internal/config"
	"github.com/maltedev/listing-harvester/internal/database"
	"github.com/maltedev/listing-harvester/internal/drive"
	"github.com/maltedev/listing-harvester/internal/events"
	"github.com/maltedev/listing-harvester/internal/export"
	"github.com/maltedev/listing-harvester/internal/logging"
	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/pagereader"
	"github.com/maltedev/listing-harvester/internal/pipeline"
	"github.com/maltedev/listing-harvester/internal/retry"
	"github.com/maltedev/listing-harvester/internal/scheduler"
	"github.com/maltedev/listing-harvester/internal/scraper"
	"github.com/maltedev/listing-harvester/internal/storage"
	"github.com/maltedev/listing-harvester/internal/window"
)

func main() {
	var (
		windowFlag     = flag.String("window", "", "target date YYYY-MM-DD (default: yesterday in the site time zone)")
		categoriesFlag = flag.String("categories", "", "comma separated category names to harvest (default: whole profile)")
		resume         = flag.Bool("resume", false, "skip categories already uploaded or empty in this window's report")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *windowFlag, *categoriesFlag, *resume); err != nil {
		logger.Error("harvest failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, windowDate, categoryList string, resume bool) error {
	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	w := window.Yesterday(now())
	if windowDate != "" {
		parsed, err := window.Parse(windowDate)
		if err != nil {
			return err
		}
		w = parsed
	}

	profile, err := config.ProfileByName(cfg.Profile)
	if err != nil {
		return err
	}
	categories, err := profile.Select(splitList(categoryList))
	if err != nil {
		return err
	}
	if resume {
		categories = pendingCategories(cfg.Output.ReportDir, w, categories, logger)
	}

	runID := uuid.New().String()
	logger.Info("starting harvest",
		"run_id", runID,
		"profile", profile.Name,
		"window", w.Date,
		"categories", len(categories),
		"reader", cfg.Scraper.Reader)

	reader, closeReader, err := newReader(cfg, logger)
	if err != nil {
		return err
	}
	defer closeReader()

	var uploader pipeline.Uploader
	if cfg.Drive.Enabled {
		parent := cfg.Drive.ParentFolderID
		if parent == "" {
			parent = profile.ParentFolderID
		}
		client, err := drive.NewClient(ctx, []byte(cfg.Drive.CredentialsJSON), parent, logger)
		if err != nil {
			return fmt.Errorf("drive client: %w", err)
		}
		up := drive.NewUploader(client, drive.DefaultPolicy(), logger)
		if err := up.CheckAccess(ctx); err != nil {
			return fmt.Errorf("drive access check on folder %s: %w", parent, err)
		}
		uploader = up
	} else {
		logger.Warn("drive upload disabled, workbooks stay local", "dir", cfg.Output.Dir)
	}

	recorders, tracker, cleanup, err := newRecorders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := scraperOptions(cfg)
	var resolver scraper.Resolver = scraper.NewDetailResolver(reader, opts, now, logger)
	if len(cfg.Memcache.Servers) > 0 {
		store := cache.NewMemcacheStore(cfg.Memcache.Servers...)
		if err := store.Ping(); err != nil {
			logger.Warn("memcache unavailable, detail cache disabled", "servers", cfg.Memcache.Servers, "error", err)
		} else {
			resolver = cache.NewCachedResolver(resolver, store, cfg.Memcache.TTL, logger)
		}
	}

	harvester := scraper.NewHarvester(
		scraper.NewDiscoverer(reader, opts, logger),
		scraper.NewListingFetcher(reader, resolver, opts, logger),
		logger,
	)

	stage := pipeline.NewStage(runID, w, export.NewWriter(cfg.Output.Dir, logger), uploader,
		pipeline.Options{RemoveAfterUpload: cfg.Drive.RemoveAfterUpload}, logger, recorders...)

	var observers []scheduler.Observer
	if tracker != nil {
		observers = append(observers, tracker)
	}
	sched, err := scheduler.New(scheduler.Config{
		ChunkSize:    cfg.Scheduler.ChunkSize,
		MaxParallel:  cfg.Scheduler.MaxParallel,
		StaggerDelay: cfg.Scheduler.StaggerDelay,
		ChunkDelay:   cfg.Scheduler.ChunkDelay,
	}, harvester, stage, logger, observers...)
	if err != nil {
		return err
	}

	info := models.RunInfo{
		ID:         runID,
		Profile:    profile.Name,
		Window:     w.Date,
		Status:     models.RunRunning,
		StartedAt:  now(),
		Categories: len(categories),
	}
	stage.Start(ctx, info)

	summary, runErr := sched.Run(ctx, categories, w)

	finished := now()
	info.FinishedAt = &finished
	info.Succeeded = summary.Succeeded
	info.Failed = len(summary.Failed)
	info.Empty = len(summary.Empty)
	info.Kept = summary.Kept
	info.Status = models.RunCompleted
	if runErr != nil {
		info.Status = models.RunAborted
		info.Error = runErr.Error()
	}

	// The run context may already be cancelled; bookkeeping still gets a chance.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stage.Finish(finishCtx, info)

	logger.Info("harvest finished",
		"run_id", runID,
		"status", info.Status,
		"succeeded", info.Succeeded,
		"failed", summary.Failed,
		"empty", summary.Empty,
		"kept", info.Kept,
		"duration", finished.Sub(info.StartedAt).Round(time.Second))

	return runErr
}

func newReader(cfg *config.Config, logger *slog.Logger) (pagereader.Reader, func(), error) {
	if cfg.Scraper.Reader == config.ReaderHTTP {
		fetcher := pagereader.NewHTTPFetcher(cfg.Scraper.PageTimeout, cfg.Scraper.UserAgent, cfg.Browser.AcceptLanguage)
		return pagereader.NewStaticReader(fetcher), func() {}, nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.UserAgent = cfg.Scraper.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer

	b, err := browser.New(opts, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return b, func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}, nil
}

// newRecorders sets up the run report and whichever optional sinks are configured.
// An optional sink that cannot connect is skipped with a warning.
func newRecorders(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]pipeline.Recorder, *api.Tracker, func(), error) {
	var recorders []pipeline.Recorder
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	reports, err := storage.NewReportStore(cfg.Output.ReportDir, logger)
	if err != nil {
		return nil, nil, cleanup, err
	}
	recorders = append(recorders, reports)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, events disabled", "addr", cfg.Redis.Addr, "error", err)
			client.Close()
		} else {
			publisher := events.NewPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen, logger)
			recorders = append(recorders, publisher)
			closers = append(closers, func() { publisher.Close() })
		}
	}

	if cfg.Database.URL != "" {
		db, err := database.New(ctx, database.Config{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			logger.Warn("database unavailable, run ledger disabled", "error", err)
		} else if err := db.Migrate(ctx); err != nil {
			logger.Warn("failed to migrate ledger, run ledger disabled", "error", err)
			db.Close()
		} else {
			recorders = append(recorders, database.NewLedger(db, logger))
			closers = append(closers, db.Close)
		}
	}

	var tracker *api.Tracker
	if cfg.Status.Addr != "" {
		tracker = api.NewTracker()
		recorders = append(recorders, tracker)
		srv := api.NewServer(cfg.Status.Addr, api.NewHandlers(tracker, logger), logger)
		srv.Start()
		closers = append(closers, func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Warn("status server shutdown failed", "error", err)
			}
		})
	}

	return recorders, tracker, cleanup, nil
}

func scraperOptions(cfg *config.Config) scraper.Options {
	opts := scraper.DefaultOptions()
	opts.PageTimeout = cfg.Scraper.PageTimeout
	opts.DetailTimeout = cfg.Scraper.DetailTimeout
	opts.WaitTimeout = cfg.Scraper.WaitTimeout
	opts.PageDelay = cfg.Scraper.PageDelay
	opts.PageJitter = cfg.Scraper.PageJitter

	for _, p := range []*retry.Policy{&opts.PagePolicy, &opts.DetailPolicy} {
		p.MaxAttempts = cfg.Scraper.MaxAttempts
		p.BackoffBase = cfg.Scraper.BackoffBase
		p.BackoffCap = cfg.Scraper.BackoffCap
	}
	return opts
}

func pendingCategories(reportDir string, w window.Window, categories []models.Category, logger *slog.Logger) []models.Category {
	report, err := storage.Load(storage.ReportPath(reportDir, w.Date))
	if err != nil {
		logger.Info("no previous report for window, harvesting everything", "window", w.Date)
		return categories
	}

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	pending := make(map[string]bool)
	for _, n := range report.Pending(names) {
		pending[n] = true
	}

	var out []models.Category
	for _, c := range categories {
		if pending[c.Name] {
			out = append(out, c)
		}
	}
	logger.Info("resuming window", "window", w.Date, "pending", len(out), "skipped", len(categories)-len(out))
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
