package pipeline

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/providers/planner"
)

// planStoryboard runs the planning stage: one multimodal model call that
// turns the product image plus marketing context into a storyboard.
func (o *Orchestrator) planStoryboard(ctx context.Context, job *domain.VideoJob) error {
	_, spec := o.tiers.Lookup(job.Tier)

	productImage, err := o.store.Read(ctx, job.SourceImageKey)
	if err != nil {
		return fmt.Errorf("read source image: %w", err)
	}

	board, warnings, err := o.planner.Plan(ctx, planner.Request{
		ProductName:        job.ProductName,
		ProductDescription: job.ProductDescription,
		Brand:              job.Brand,
		Image:              productImage,
		ImageMIME:          "image/png",
		CutCount:           spec.CutCount,
		TotalSeconds:       spec.TotalSeconds,
		RequestID:          job.ID,
	})
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	// The model's count drift is tolerated, not corrected.
	for _, warning := range warnings {
		o.logger.Warn().Str("job_id", job.ID).Msg("planning: " + warning)
	}

	job.Storyboard = board
	if err := o.repo.SaveStoryboard(ctx, job.ID, board); err != nil {
		return fmt.Errorf("persist storyboard: %w", err)
	}
	return nil
}
