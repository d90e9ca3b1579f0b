package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/pipeline"
	"storyreel/internal/providers/genai"
	imageprovider "storyreel/internal/providers/image"
	"storyreel/internal/providers/planner"
	videoprovider "storyreel/internal/providers/video"
	"storyreel/internal/render"
	"storyreel/internal/storage"
)

// jobWorker claims pending jobs one at a time and runs the pipeline for each.
// A single worker owns a job end-to-end; the flock plus the SKIP LOCKED claim
// query keep a second worker from ever touching the same record.
type jobWorker struct {
	ctx          context.Context
	repo         domain.VideoJobRepository
	orchestrator *pipeline.Orchestrator
	logger       infra.Logger
	pollEvery    time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock := flock.New(cfg.WorkerLockPath)
	locked, err := lock.TryLock()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: acquire lock failed")
	}
	if !locked {
		logger.Fatal().Str("path", cfg.WorkerLockPath).Msg("worker: another worker holds the lock")
	}
	defer func() {
		_ = lock.Unlock()
	}()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	tiers, err := domain.LoadTierCatalog(cfg.TierCatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load tier catalog")
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}
	if geminiClient.Offline() {
		logger.Warn().Str("model", geminiClient.Model()).Msg("worker: gemini api key missing, using synthetic asset generation")
	}

	jobRepo := repo.NewVideoJobRepository(pool)
	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Repo:     jobRepo,
		Store:    fileStore,
		Planner:  planner.NewGeminiPlanner(geminiClient),
		Images:   imageprovider.NewGeminiGenerator(geminiClient),
		Videos:   videoprovider.NewGeminiGenerator(geminiClient),
		Composer: render.NewComposer(fileStore, logger, nil),
		Logger:   logger,
		Tiers:    tiers,
		Throttle: cfg.ShotThrottle,
	})

	worker := &jobWorker{
		ctx:          ctx,
		repo:         jobRepo,
		orchestrator: orchestrator,
		logger:       logger,
		pollEvery:    cfg.WorkerPollEvery,
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		job, err := w.repo.ClaimPending(w.ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if sleepErr := pipeline.SleepContext(w.ctx, w.pollEvery); sleepErr != nil {
					return sleepErr
				}
				continue
			}
			w.logger.Error().Err(err).Msg("worker: failed to claim job")
			if sleepErr := pipeline.SleepContext(w.ctx, w.pollEvery); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		w.logger.Info().Str("job_id", job.ID).Str("tier", string(job.Tier)).Msg("worker: picked job")
		if err := w.orchestrator.Run(w.ctx, job); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: pipeline error not recorded")
		}
	}
}
