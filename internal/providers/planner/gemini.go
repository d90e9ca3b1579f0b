package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storyreel/internal/domain"
	"storyreel/internal/providers/genai"
)

// Request carries the product and brand inputs for one planning call.
type Request struct {
	ProductName        string
	ProductDescription string
	Brand              *domain.BrandContext
	Image              []byte
	ImageMIME          string
	CutCount           int
	TotalSeconds       int
	RequestID          string
}

// Planner turns a product image plus marketing context into a storyboard.
type Planner interface {
	Plan(ctx context.Context, req Request) (domain.Storyboard, []string, error)
}

// GeminiPlanner plans storyboards with one multimodal Gemini call.
type GeminiPlanner struct {
	client *genai.Client
}

func NewGeminiPlanner(client *genai.Client) *GeminiPlanner {
	return &GeminiPlanner{client: client}
}

// Plan invokes the model and parses its heterogeneous JSON array into a
// storyboard. Count drift against the tier is returned as warnings; anything
// that leaves fewer than two usable shots is an error carrying the raw model
// output for diagnosis.
func (p *GeminiPlanner) Plan(ctx context.Context, req Request) (domain.Storyboard, []string, error) {
	raw, err := p.client.GeneratePlan(ctx, genai.PlanRequest{
		Instructions: buildInstructions(req),
		ProductText:  buildProductText(req),
		Image:        req.Image,
		ImageMIME:    req.ImageMIME,
		CutCount:     req.CutCount,
		TotalSeconds: req.TotalSeconds,
		RequestID:    req.RequestID,
	})
	if err != nil {
		return nil, nil, err
	}

	board, err := ParseStoryboard(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w; raw model output: %s", err, truncate(raw, 2000))
	}
	board.Normalize()
	warnings, err := board.Validate(req.CutCount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w; raw model output: %s", err, truncate(raw, 2000))
	}
	return board, warnings, nil
}

// ParseStoryboard decodes the model's JSON array, tolerating markdown code
// fences and surrounding prose around the array itself.
func ParseStoryboard(raw string) (domain.Storyboard, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, fmt.Errorf("%w: empty planning response", domain.ErrInvalidStoryboard)
	}
	var board domain.Storyboard
	if err := json.Unmarshal([]byte(fragment), &board); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStoryboard, err)
	}
	return board, nil
}

func buildInstructions(req Request) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a storyboard director for short vertical product marketing videos. ")
	fmt.Fprintf(sb, "Plan exactly %d shots connected by %d transitions, %d seconds in total. ", req.CutCount, req.CutCount-1, req.TotalSeconds)
	sb.WriteString("Respond strictly with a JSON array that interleaves shot objects and transition objects, beginning and ending with a shot. ")
	sb.WriteString(`A shot object is {"cut":int,"scene_description":string,"image_prompt":string,"duration":number,"is_hero_shot":bool,"resolution":"1080p"|"720p"}. `)
	sb.WriteString(`A transition object is {"transition":{"method":"generative"|"local","effect":"crossfade"|"fade_to_black"|"zoom_in"|"zoom_out"|"pan","duration":number,"reason":string}}. `)
	sb.WriteString("Mark the first and last shot as hero shots at 1080p; all other shots are 720p. ")
	sb.WriteString("Generative transitions are expensive: mark only 30-40% of transitions as generative, reserving them for the highest-impact cuts, typically the opening and closing transitions. ")
	sb.WriteString("Every remaining transition must be satisfiable by a cheap local effect.")
	return sb.String()
}

func buildProductText(req Request) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Product: %s.", req.ProductName)
	if desc := strings.TrimSpace(req.ProductDescription); desc != "" {
		fmt.Fprintf(sb, " Description: %s.", desc)
	}
	if b := req.Brand; b != nil {
		if b.Name != "" {
			fmt.Fprintf(sb, " Brand: %s.", b.Name)
		}
		if b.Values != "" {
			fmt.Fprintf(sb, " Brand values: %s.", b.Values)
		}
		if b.TargetAudience != "" {
			fmt.Fprintf(sb, " Target audience: %s.", b.TargetAudience)
		}
		if b.Tone != "" {
			fmt.Fprintf(sb, " Emotional tone: %s.", b.Tone)
		}
		if b.Locale != "" {
			fmt.Fprintf(sb, " Use locale '%s' for language choices.", b.Locale)
		}
	}
	return sb.String()
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Planner = (*GeminiPlanner)(nil)
