package video

import (
	"context"

	"storyreel/internal/providers/genai"
)

// TransitionRequest asks for a clip that carries one shot into the next.
type TransitionRequest struct {
	MotionPrompt string
	FromImage    []byte
	ToImage      []byte
	Seconds      float64
	RequestID    string
}

// Asset is a rendered transition clip ready for persistence.
type Asset struct {
	Format  string
	Seconds float64
	Data    []byte
}

// Generator renders generative transitions between two stills.
type Generator interface {
	RenderTransition(ctx context.Context, req TransitionRequest) (*Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) RenderTransition(ctx context.Context, req TransitionRequest) (*Asset, error) {
	asset, err := g.client.GenerateVideo(ctx, genai.VideoRequest{
		MotionPrompt: req.MotionPrompt,
		FromImage:    req.FromImage,
		ToImage:      req.ToImage,
		Seconds:      req.Seconds,
		RequestID:    req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{
		Format:  asset.Format,
		Seconds: asset.Seconds,
		Data:    asset.Data,
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
