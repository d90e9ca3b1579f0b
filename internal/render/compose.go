package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/storage"
)

// Output geometry for the vertical renders.
const (
	frameWidth  = 1080
	frameHeight = 1920
	frameRate   = 30
)

// Result describes one finished composition.
type Result struct {
	FinalVideoKey string
	ThumbnailKey  string
	Duration      float64
	ClipCount     int
}

// CommandRunner executes an external command. The default shells out to
// ffmpeg; tests substitute a recorder that fabricates output files.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Composer assembles the final video by concatenating shot stills, generative
// transition clips where available, and locally synthesized transitions
// everywhere else, then extracts a thumbnail from the first frame.
type Composer struct {
	store  *storage.FileStore
	logger infra.Logger
	run    CommandRunner
}

func NewComposer(store *storage.FileStore, logger infra.Logger, runner CommandRunner) *Composer {
	if runner == nil {
		runner = execCommand
	}
	return &Composer{store: store, logger: logger, run: runner}
}

func execCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 400 {
			detail = detail[len(detail)-400:]
		}
		return fmt.Errorf("%s: %w: %s", name, err, detail)
	}
	return nil
}

type clipKind int

const (
	clipStill clipKind = iota
	clipGenerated
	clipLocal
)

// clip is one renderable segment of the final video.
type clip struct {
	kind     clipKind
	duration float64
	effect   string
	imageKey string // still
	clipKey  string // generated transition
	fromKey  string // local transition inputs
	toKey    string
}

// Compose walks the storyboard in order and renders the clip plan. An empty
// plan means no shot succeeded, which is fatal for the job.
func (c *Composer) Compose(ctx context.Context, job *domain.VideoJob) (*Result, error) {
	clips := buildClipPlan(job)
	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: no clips to compose", domain.ErrNoContent)
	}

	workDir, err := os.MkdirTemp("", "storyreel-compose-")
	if err != nil {
		return nil, fmt.Errorf("compose workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var files []string
	for i, cl := range clips {
		outFile := filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i))
		switch cl.kind {
		case clipStill:
			err = c.renderStill(ctx, cl, outFile)
		case clipGenerated:
			err = c.normalizeGenerated(ctx, cl, outFile)
		case clipLocal:
			err = c.renderLocalTransition(ctx, cl, outFile)
		}
		if err != nil {
			return nil, fmt.Errorf("render clip %d: %w", i, err)
		}
		files = append(files, outFile)
	}

	finalFile := filepath.Join(workDir, "final.mp4")
	if err := c.concat(ctx, files, workDir, finalFile); err != nil {
		return nil, err
	}
	thumbFile := filepath.Join(workDir, "thumbnail.jpg")
	if err := c.extractThumbnail(ctx, finalFile, thumbFile); err != nil {
		return nil, err
	}

	finalKey, err := c.persist(ctx, finalFile, storage.FinalVideoKey(job.UserID, job.ID))
	if err != nil {
		return nil, err
	}
	thumbKey, err := c.persist(ctx, thumbFile, storage.ThumbnailKey(job.UserID, job.ID))
	if err != nil {
		return nil, err
	}

	result := &Result{
		FinalVideoKey: finalKey,
		ThumbnailKey:  thumbKey,
		Duration:      plannedDuration(clips),
		ClipCount:     len(clips),
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Int("clips", result.ClipCount).
		Float64("duration_seconds", result.Duration).
		Msg("render: composition finished")
	return result, nil
}

// buildClipPlan derives the ordered clip list from the storyboard and the
// per-item artifacts. Shots without an artifact are skipped; a generative
// transition missing its clip falls back to the same local effect it asked
// for, and a transition missing either adjacent still is dropped entirely.
func buildClipPlan(job *domain.VideoJob) []clip {
	var clips []clip
	for idx, item := range job.Storyboard {
		switch {
		case item.Shot != nil:
			artifact, ok := job.ShotArtifacts[item.Shot.Cut]
			if !ok || artifact.URL == "" {
				continue
			}
			clips = append(clips, clip{
				kind:     clipStill,
				duration: item.Shot.Duration,
				imageKey: artifact.URL,
			})
		case item.Transition != nil:
			from, to := job.Storyboard.AdjacentShots(idx)
			if from == nil || to == nil {
				continue
			}
			if item.Transition.Method == domain.MethodGenerative {
				key := domain.TransitionKey(from.Cut, to.Cut)
				if artifact, ok := job.TransitionArtifacts[key]; ok && artifact.URL != "" {
					clips = append(clips, clip{
						kind:     clipGenerated,
						duration: item.Transition.Duration,
						clipKey:  artifact.URL,
					})
					continue
				}
			}
			fromArt := job.ShotArtifacts[from.Cut]
			toArt := job.ShotArtifacts[to.Cut]
			if fromArt.URL == "" || toArt.URL == "" {
				continue
			}
			clips = append(clips, clip{
				kind:     clipLocal,
				duration: item.Transition.Duration,
				effect:   item.Transition.Effect,
				fromKey:  fromArt.URL,
				toKey:    toArt.URL,
			})
		}
	}
	return clips
}

func plannedDuration(clips []clip) float64 {
	var total float64
	for _, cl := range clips {
		total += cl.duration
	}
	return total
}

func scalePad() string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		frameWidth, frameHeight, frameWidth, frameHeight)
}

// renderStill holds a shot image for its declared duration.
func (c *Composer) renderStill(ctx context.Context, cl clip, outFile string) error {
	imgPath, err := c.store.Path(cl.imageKey)
	if err != nil {
		return err
	}
	return c.run(ctx, "ffmpeg", "-y",
		"-loop", "1",
		"-t", fmt.Sprintf("%.3f", cl.duration),
		"-i", imgPath,
		"-vf", scalePad(),
		"-r", fmt.Sprintf("%d", frameRate),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		outFile,
	)
}

// normalizeGenerated re-encodes a generative clip to the common geometry and
// frame rate so the concat demuxer accepts it.
func (c *Composer) normalizeGenerated(ctx context.Context, cl clip, outFile string) error {
	clipPath, err := c.store.Path(cl.clipKey)
	if err != nil {
		return err
	}
	return c.run(ctx, "ffmpeg", "-y",
		"-i", clipPath,
		"-vf", scalePad()+fmt.Sprintf(",fps=%d", frameRate),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		outFile,
	)
}

func (c *Composer) concat(ctx context.Context, files []string, workDir, outFile string) error {
	var lines []string
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("file '%s'", f))
	}
	listFile := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	if err := c.run(ctx, "ffmpeg", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		outFile,
	); err != nil {
		return fmt.Errorf("concat clips: %w", err)
	}
	return nil
}

func (c *Composer) extractThumbnail(ctx context.Context, videoFile, outFile string) error {
	if err := c.run(ctx, "ffmpeg", "-y",
		"-i", videoFile,
		"-frames:v", "1",
		"-q:v", "2",
		outFile,
	); err != nil {
		return fmt.Errorf("extract thumbnail: %w", err)
	}
	return nil
}

func (c *Composer) persist(ctx context.Context, path, key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	storedKey, err := c.store.Write(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", filepath.Base(path), err)
	}
	return storedKey, nil
}
