package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates the pipeline lifecycle states.
type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusPlanning         JobStatus = "planning"
	JobStatusGeneratingImages JobStatus = "generating_images"
	JobStatusGeneratingVideos JobStatus = "generating_videos"
	JobStatusComposing        JobStatus = "composing"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// statusTransitions is the only legal forward order. Every non-terminal state
// may also fall to failed.
var statusTransitions = map[JobStatus]JobStatus{
	JobStatusPending:          JobStatusPlanning,
	JobStatusPlanning:         JobStatusGeneratingImages,
	JobStatusGeneratingImages: JobStatusGeneratingVideos,
	JobStatusGeneratingVideos: JobStatusComposing,
	JobStatusComposing:        JobStatusCompleted,
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	return statusTransitions[s] == next
}

// ShotArtifact records the outcome of rendering one shot. A failed shot keeps
// an empty URL alongside the error so partial failure stays visible.
type ShotArtifact struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// TransitionArtifact records the outcome of one generative transition clip.
type TransitionArtifact struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// BrandContext is the optional brand-tone input to planning. Absent fields
// degrade the prompt gracefully rather than failing the job.
type BrandContext struct {
	Name           string `json:"name,omitempty"`
	Values         string `json:"values,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	Tone           string `json:"tone,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

// VideoJob is the persisted record of one storyboard-to-video request. It is
// mutated exclusively by the worker that owns it.
type VideoJob struct {
	ID                 string
	UserID             string
	ProductName        string
	ProductDescription string
	SourceImageKey     string
	Tier               Tier
	Brand              *BrandContext

	Storyboard          Storyboard
	ShotArtifacts       map[int]ShotArtifact
	TransitionArtifacts map[string]TransitionArtifact
	FinalVideoKey       string
	ThumbnailKey        string

	Status       JobStatus
	CurrentStep  string
	ErrorMessage string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// AdvanceTo moves the job to the next status, enforcing the transition table.
func (j *VideoJob) AdvanceTo(next JobStatus) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	return nil
}

// Fail marks the job failed with a human-readable message. Failing a job is
// legal from every non-terminal state.
func (j *VideoJob) Fail(msg string) {
	if j.Status.Terminal() {
		return
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = msg
}
