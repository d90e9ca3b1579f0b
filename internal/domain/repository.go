package domain

import "context"

// VideoJobRepository defines persistence for video generation jobs.
type VideoJobRepository interface {
	Create(ctx context.Context, job *VideoJob) error
	GetByID(ctx context.Context, jobID string) (*VideoJob, error)
	// ClaimPending atomically picks the oldest pending job and moves it to
	// planning so a second worker can never claim the same record.
	ClaimPending(ctx context.Context) (*VideoJob, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, step string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	SaveStoryboard(ctx context.Context, jobID string, storyboard Storyboard) error
	SaveShotArtifact(ctx context.Context, jobID string, cut int, artifact ShotArtifact) error
	SaveTransitionArtifact(ctx context.Context, jobID, key string, artifact TransitionArtifact) error
	SetResult(ctx context.Context, jobID, finalVideoKey, thumbnailKey string) error
}
