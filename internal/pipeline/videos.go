package pipeline

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/providers/video"
	"storyreel/internal/storage"
)

// renderTransitions runs the video stage over the transitions the planner
// marked generative. Adjacency comes from scanning the storyboard around each
// transition; the interleaving is the adjacency relation. Failures are
// recorded per transition and never abort the stage, because composition
// falls back to a local effect for anything missing. An all-local storyboard
// makes this a no-op.
func (o *Orchestrator) renderTransitions(ctx context.Context, job *domain.VideoJob) error {
	for idx, item := range job.Storyboard {
		transition := item.Transition
		if transition == nil || transition.Method != domain.MethodGenerative {
			continue
		}

		from, to := job.Storyboard.AdjacentShots(idx)
		if from == nil || to == nil {
			o.logger.Warn().Str("job_id", job.ID).Int("item", idx).Msg("videos: transition has no adjacent shots, skipping")
			continue
		}
		key := domain.TransitionKey(from.Cut, to.Cut)

		fromBytes, toBytes, err := o.transitionFrames(ctx, job, from.Cut, to.Cut)
		if err != nil {
			if recordErr := o.recordTransitionFailure(ctx, job, key, err); recordErr != nil {
				return recordErr
			}
			continue
		}

		var asset *video.Asset
		err = o.retry.Do(ctx, func() error {
			rendered, renderErr := o.videos.RenderTransition(ctx, video.TransitionRequest{
				MotionPrompt: motionPrompt(transition, from, to),
				FromImage:    fromBytes,
				ToImage:      toBytes,
				Seconds:      transition.Duration,
				RequestID:    fmt.Sprintf("%s-transition-%s", job.ID, key),
			})
			if renderErr != nil {
				return renderErr
			}
			asset = rendered
			return nil
		})
		if err != nil {
			if recordErr := o.recordTransitionFailure(ctx, job, key, err); recordErr != nil {
				return recordErr
			}
			continue
		}

		storedKey, err := o.store.Write(ctx, storage.TransitionClipKey(job.UserID, job.ID, key), asset.Data)
		if err != nil {
			return fmt.Errorf("persist transition %s clip: %w", key, err)
		}
		artifact := domain.TransitionArtifact{URL: storedKey}
		job.TransitionArtifacts[key] = artifact
		if err := o.repo.SaveTransitionArtifact(ctx, job.ID, key, artifact); err != nil {
			return fmt.Errorf("persist transition %s artifact: %w", key, err)
		}
	}
	return nil
}

// transitionFrames loads the cached stills on both sides of a transition.
// A missing or failed adjacent shot is a per-transition failure, not a stage
// failure.
func (o *Orchestrator) transitionFrames(ctx context.Context, job *domain.VideoJob, fromCut, toCut int) ([]byte, []byte, error) {
	fromArt, ok := job.ShotArtifacts[fromCut]
	if !ok || fromArt.URL == "" {
		return nil, nil, fmt.Errorf("shot %d has no rendered image", fromCut)
	}
	toArt, ok := job.ShotArtifacts[toCut]
	if !ok || toArt.URL == "" {
		return nil, nil, fmt.Errorf("shot %d has no rendered image", toCut)
	}
	fromBytes, err := o.store.Read(ctx, fromArt.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("read shot %d image: %w", fromCut, err)
	}
	toBytes, err := o.store.Read(ctx, toArt.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("read shot %d image: %w", toCut, err)
	}
	return fromBytes, toBytes, nil
}

func (o *Orchestrator) recordTransitionFailure(ctx context.Context, job *domain.VideoJob, key string, cause error) error {
	artifact := domain.TransitionArtifact{Error: cause.Error()}
	job.TransitionArtifacts[key] = artifact
	if err := o.repo.SaveTransitionArtifact(ctx, job.ID, key, artifact); err != nil {
		return fmt.Errorf("persist transition %s failure: %w", key, err)
	}
	o.logger.Warn().Err(cause).Str("job_id", job.ID).Str("transition", key).Msg("videos: transition failed, composition will fall back")
	return nil
}

// motionPrompt translates the requested effect into camera-motion language
// for the video model.
func motionPrompt(t *domain.Transition, from, to *domain.Shot) string {
	motion := map[string]string{
		domain.EffectCrossfade:   "Dissolve gently from the first scene into the second.",
		domain.EffectFadeToBlack: "Fade the first scene to black, then reveal the second scene.",
		domain.EffectZoomIn:      "Push the camera into the first scene until it resolves into the second.",
		domain.EffectZoomOut:     "Pull the camera back from the first scene to reveal the second.",
		domain.EffectPan:         "Sweep the camera sideways from the first scene across to the second.",
	}[t.Effect]
	if motion == "" {
		motion = "Move smoothly from the first scene into the second."
	}
	return fmt.Sprintf("%s Opening frame: %s. Closing frame: %s.", motion, from.SceneDescription, to.SceneDescription)
}
