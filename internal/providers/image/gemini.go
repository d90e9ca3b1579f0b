package image

import (
	"context"

	"storyreel/internal/providers/genai"
)

// ShotRequest asks for one storyboard still.
type ShotRequest struct {
	Prompt     string
	Resolution string
	RequestID  string
}

// Asset is a rendered still ready for persistence.
type Asset struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// Generator renders storyboard shots into still images.
type Generator interface {
	RenderShot(ctx context.Context, req ShotRequest) (*Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) RenderShot(ctx context.Context, req ShotRequest) (*Asset, error) {
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:     req.Prompt,
		Resolution: req.Resolution,
		RequestID:  req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{
		Format: asset.Format,
		Width:  asset.Width,
		Height: asset.Height,
		Data:   asset.Data,
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
