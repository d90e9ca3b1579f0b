package domain

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusPlanning, true},
		{JobStatusPlanning, JobStatusGeneratingImages, true},
		{JobStatusGeneratingImages, JobStatusGeneratingVideos, true},
		{JobStatusGeneratingVideos, JobStatusComposing, true},
		{JobStatusComposing, JobStatusCompleted, true},
		{JobStatusPending, JobStatusGeneratingImages, false},
		{JobStatusPlanning, JobStatusPending, false},
		{JobStatusComposing, JobStatusPlanning, false},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusComposing, JobStatusFailed, true},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusPlanning, false},
		{JobStatusCompleted, JobStatusPlanning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAdvanceTo(t *testing.T) {
	job := &VideoJob{Status: JobStatusPending}
	order := []JobStatus{
		JobStatusPlanning,
		JobStatusGeneratingImages,
		JobStatusGeneratingVideos,
		JobStatusComposing,
		JobStatusCompleted,
	}
	for _, status := range order {
		if err := job.AdvanceTo(status); err != nil {
			t.Fatalf("AdvanceTo(%s): %v", status, err)
		}
	}
	if err := job.AdvanceTo(JobStatusFailed); err == nil {
		t.Fatal("completed job must not transition to failed")
	} else if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error %v is not ErrInvalidTransition", err)
	}
}

func TestAdvanceToSkippingStage(t *testing.T) {
	job := &VideoJob{Status: JobStatusPlanning}
	if err := job.AdvanceTo(JobStatusComposing); err == nil {
		t.Fatal("skipping stages must fail")
	}
	if job.Status != JobStatusPlanning {
		t.Fatalf("status mutated on rejected transition: %s", job.Status)
	}
}

func TestFail(t *testing.T) {
	job := &VideoJob{Status: JobStatusGeneratingVideos}
	job.Fail("provider outage")
	if job.Status != JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage != "provider outage" {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}

	done := &VideoJob{Status: JobStatusCompleted}
	done.Fail("too late")
	if done.Status != JobStatusCompleted || done.ErrorMessage != "" {
		t.Fatalf("terminal job mutated by Fail: %+v", done)
	}
}

func TestTerminal(t *testing.T) {
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Fatal("completed and failed are terminal")
	}
	if JobStatusComposing.Terminal() || JobStatusPending.Terminal() {
		t.Fatal("intermediate states are not terminal")
	}
}
