package pipeline

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/providers/image"
	"storyreel/internal/storage"
)

// renderShots runs the image stage: every shot in storyboard order, one
// request at a time with a fixed throttle between successful requests to stay
// under provider quota. A shot that exhausts its retries is recorded with its
// error and the stage continues; only zero successes fails the stage.
func (o *Orchestrator) renderShots(ctx context.Context, job *domain.VideoJob) error {
	shots := job.Storyboard.Shots()
	succeeded := 0
	prevOK := false

	for _, shot := range shots {
		if prevOK && o.throttle > 0 {
			if err := o.sleep(ctx, o.throttle); err != nil {
				return err
			}
		}

		prompt := shot.ImagePrompt
		if prompt == "" {
			prompt = shot.SceneDescription
		}

		var asset *image.Asset
		err := o.retry.Do(ctx, func() error {
			rendered, renderErr := o.images.RenderShot(ctx, image.ShotRequest{
				Prompt:     prompt,
				Resolution: shot.Resolution,
				RequestID:  fmt.Sprintf("%s-shot-%d", job.ID, shot.Cut),
			})
			if renderErr != nil {
				return renderErr
			}
			asset = rendered
			return nil
		})
		if err != nil {
			prevOK = false
			artifact := domain.ShotArtifact{Error: err.Error()}
			job.ShotArtifacts[shot.Cut] = artifact
			if saveErr := o.repo.SaveShotArtifact(ctx, job.ID, shot.Cut, artifact); saveErr != nil {
				return fmt.Errorf("persist shot %d failure: %w", shot.Cut, saveErr)
			}
			o.logger.Warn().Err(err).Str("job_id", job.ID).Int("cut", shot.Cut).Msg("images: shot failed, continuing")
			continue
		}

		key, err := o.store.Write(ctx, storage.ShotKey(job.UserID, job.ID, shot.Cut), asset.Data)
		if err != nil {
			return fmt.Errorf("persist shot %d image: %w", shot.Cut, err)
		}
		artifact := domain.ShotArtifact{URL: key}
		job.ShotArtifacts[shot.Cut] = artifact
		// Written through immediately so a later crash cannot lose the shot.
		if err := o.repo.SaveShotArtifact(ctx, job.ID, shot.Cut, artifact); err != nil {
			return fmt.Errorf("persist shot %d artifact: %w", shot.Cut, err)
		}
		succeeded++
		prevOK = true
	}

	if succeeded == 0 {
		return fmt.Errorf("%w: all %d shots failed", domain.ErrNoContent, len(shots))
	}
	return nil
}
