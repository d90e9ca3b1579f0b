package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/planner"
	"storyreel/internal/providers/video"
	"storyreel/internal/render"
	"storyreel/internal/storage"
)

// Composer assembles the final video from the job's storyboard and artifacts.
type Composer interface {
	Compose(ctx context.Context, job *domain.VideoJob) (*render.Result, error)
}

// Options wires the orchestrator's collaborators. Sleep defaults to a real
// context-aware sleep; tests inject a recorder.
type Options struct {
	Repo     domain.VideoJobRepository
	Store    *storage.FileStore
	Planner  planner.Planner
	Images   image.Generator
	Videos   video.Generator
	Composer Composer
	Logger   infra.Logger
	Tiers    domain.TierCatalog
	Throttle time.Duration
	Sleep    Sleeper
	Retry    *RetryPolicy
}

// Orchestrator runs the four pipeline stages for one job, strictly in order,
// persisting each state transition before the next stage starts. One worker
// owns one job end-to-end; there is no cross-stage or cross-shot parallelism.
type Orchestrator struct {
	repo     domain.VideoJobRepository
	store    *storage.FileStore
	planner  planner.Planner
	images   image.Generator
	videos   video.Generator
	composer Composer
	logger   infra.Logger
	tiers    domain.TierCatalog
	throttle time.Duration
	sleep    Sleeper
	retry    RetryPolicy
}

func NewOrchestrator(opts Options) *Orchestrator {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	retry := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Retryable: func(err error) bool {
			return errors.Is(err, domain.ErrQuotaExceeded)
		},
		Sleep: sleep,
	}
	if opts.Retry != nil {
		retry = *opts.Retry
		if retry.Sleep == nil {
			retry.Sleep = sleep
		}
	}
	tiers := opts.Tiers
	if tiers == nil {
		tiers = domain.DefaultTierCatalog()
	}
	return &Orchestrator{
		repo:     opts.Repo,
		store:    opts.Store,
		planner:  opts.Planner,
		images:   opts.Images,
		videos:   opts.Videos,
		composer: opts.Composer,
		logger:   opts.Logger,
		tiers:    tiers,
		throttle: opts.Throttle,
		sleep:    sleep,
		retry:    retry,
	}
}

// Run executes the pipeline for one job. Any stage error lands the job in
// failed with the original message preserved; Run itself only returns an
// error when even the failure could not be recorded.
func (o *Orchestrator) Run(ctx context.Context, job *domain.VideoJob) error {
	if err := o.run(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pipeline: job failed")
		// A job already in a terminal state stays there; only a live job
		// is moved to failed.
		if job.Status.Terminal() {
			return nil
		}
		job.Fail(err.Error())
		if markErr := o.repo.MarkFailed(ctx, job.ID, job.ErrorMessage); markErr != nil {
			return fmt.Errorf("mark job failed: %w (original: %v)", markErr, err)
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, job *domain.VideoJob) error {
	if job.ShotArtifacts == nil {
		job.ShotArtifacts = make(map[int]domain.ShotArtifact)
	}
	if job.TransitionArtifacts == nil {
		job.TransitionArtifacts = make(map[string]domain.TransitionArtifact)
	}

	// The claim query already moves pending jobs to planning; a directly
	// invoked job still goes through the same transition table.
	if job.Status == domain.JobStatusPending {
		if err := job.AdvanceTo(domain.JobStatusPlanning); err != nil {
			return err
		}
	}
	if job.Status != domain.JobStatusPlanning {
		return fmt.Errorf("%w: cannot start pipeline from %s", domain.ErrInvalidTransition, job.Status)
	}
	if err := o.persistStatus(ctx, job, "planning storyboard"); err != nil {
		return err
	}
	if err := o.planStoryboard(ctx, job); err != nil {
		return err
	}

	if err := o.advance(ctx, job, domain.JobStatusGeneratingImages, "rendering shot stills"); err != nil {
		return err
	}
	if err := o.renderShots(ctx, job); err != nil {
		return err
	}

	if err := o.advance(ctx, job, domain.JobStatusGeneratingVideos, "rendering generative transitions"); err != nil {
		return err
	}
	if err := o.renderTransitions(ctx, job); err != nil {
		return err
	}

	if err := o.advance(ctx, job, domain.JobStatusComposing, "composing final video"); err != nil {
		return err
	}
	result, err := o.composer.Compose(ctx, job)
	if err != nil {
		return err
	}
	job.FinalVideoKey = result.FinalVideoKey
	job.ThumbnailKey = result.ThumbnailKey
	if err := o.repo.SetResult(ctx, job.ID, result.FinalVideoKey, result.ThumbnailKey); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	if err := o.advance(ctx, job, domain.JobStatusCompleted, "completed"); err != nil {
		return err
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Float64("duration_seconds", result.Duration).
		Int("clips", result.ClipCount).
		Msg("pipeline: job completed")
	return nil
}

// advance moves the job forward and persists the new state before the next
// stage runs, so status reads always reflect actual progress.
func (o *Orchestrator) advance(ctx context.Context, job *domain.VideoJob, status domain.JobStatus, step string) error {
	if err := job.AdvanceTo(status); err != nil {
		return err
	}
	return o.persistStatus(ctx, job, step)
}

func (o *Orchestrator) persistStatus(ctx context.Context, job *domain.VideoJob, step string) error {
	job.CurrentStep = step
	if err := o.repo.UpdateStatus(ctx, job.ID, job.Status, step); err != nil {
		return fmt.Errorf("persist status %s: %w", job.Status, err)
	}
	o.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pipeline: " + step)
	return nil
}
