package render

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
)

// xfade transition names for each locally synthesized effect. Unknown effect
// ids fall back to a plain crossfade; zoom-out has no xfade counterpart and
// is rendered with a zoompan pull-back instead.
var xfadeTransitions = map[string]string{
	domain.EffectCrossfade:   "fade",
	domain.EffectFadeToBlack: "fadeblack",
	domain.EffectZoomIn:      "zoomin",
	domain.EffectPan:         "slideleft",
}

// renderLocalTransition synthesizes a transition clip from the two cached
// adjacent stills.
func (c *Composer) renderLocalTransition(ctx context.Context, cl clip, outFile string) error {
	fromPath, err := c.store.Path(cl.fromKey)
	if err != nil {
		return err
	}
	toPath, err := c.store.Path(cl.toKey)
	if err != nil {
		return err
	}

	if cl.effect == domain.EffectZoomOut {
		return c.renderZoomOut(ctx, toPath, cl.duration, outFile)
	}

	transition, ok := xfadeTransitions[cl.effect]
	if !ok {
		c.logger.Warn().Str("effect", cl.effect).Msg("render: unknown transition effect, using crossfade")
		transition = xfadeTransitions[domain.EffectCrossfade]
	}
	return c.renderXfade(ctx, fromPath, toPath, transition, cl.duration, outFile)
}

// renderXfade crossfades two stills over the full clip duration.
func (c *Composer) renderXfade(ctx context.Context, fromPath, toPath, transition string, duration float64, outFile string) error {
	filter := fmt.Sprintf(
		"[0:v]%s[a];[1:v]%s[b];[a][b]xfade=transition=%s:duration=%.3f:offset=0[out]",
		scalePad(), scalePad(), transition, duration,
	)
	return c.run(ctx, "ffmpeg", "-y",
		"-loop", "1", "-t", fmt.Sprintf("%.3f", duration), "-framerate", fmt.Sprintf("%d", frameRate), "-i", fromPath,
		"-loop", "1", "-t", fmt.Sprintf("%.3f", duration), "-framerate", fmt.Sprintf("%d", frameRate), "-i", toPath,
		"-filter_complex", filter,
		"-map", "[out]",
		"-t", fmt.Sprintf("%.3f", duration),
		"-r", fmt.Sprintf("%d", frameRate),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		outFile,
	)
}

// renderZoomOut pulls back from the incoming still, revealing the next scene.
func (c *Composer) renderZoomOut(ctx context.Context, imgPath string, duration float64, outFile string) error {
	totalFrames := int(duration * frameRate)
	if totalFrames < 1 {
		totalFrames = 1
	}
	zoomFilter := fmt.Sprintf(
		"%s,zoompan=z='max(1.3-0.3*on/%d,1.0)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:fps=%d:s=%dx%d",
		scalePad(), totalFrames, totalFrames, frameRate, frameWidth, frameHeight,
	)
	return c.run(ctx, "ffmpeg", "-y",
		"-loop", "1",
		"-i", imgPath,
		"-vf", zoomFilter,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		outFile,
	)
}
