package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a facade over the Gemini generateContent API covering the three
// model calls the pipeline makes: multimodal storyboard planning, still-image
// generation and image-to-image video generation. Without an API key it
// returns deterministic synthetic assets so the worker stays fully
// operational in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// PlanRequest carries everything the planning model sees.
type PlanRequest struct {
	Instructions string
	ProductText  string
	Image        []byte
	ImageMIME    string
	CutCount     int
	TotalSeconds int
	RequestID    string
}

// ImageRequest asks for one still image.
type ImageRequest struct {
	Prompt     string
	Resolution string
	RequestID  string
}

// VideoRequest asks for a short clip morphing FromImage into ToImage.
type VideoRequest struct {
	MotionPrompt string
	FromImage    []byte
	ToImage      []byte
	Seconds      float64
	RequestID    string
}

// ImageAsset is the normalized representation of a generated still.
type ImageAsset struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// VideoAsset is the normalized representation of a generated clip.
type VideoAsset struct {
	Format  string
	Seconds float64
	Data    []byte
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiTool struct {
	ImageGeneration *struct{} `json:"image_generation,omitempty"`
	VideoGeneration *struct{} `json:"video_generation,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	Tools            []geminiTool            `json:"tools,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Offline reports whether the client runs in synthetic mode.
func (c *Client) Offline() bool {
	return c.apiKey == ""
}

// GeneratePlan invokes the multimodal model once and returns the raw text of
// its response, which the planner parses into a storyboard.
func (c *Client) GeneratePlan(ctx context.Context, req PlanRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.apiKey == "" {
		return c.syntheticPlan(req)
	}

	parts := []geminiPart{{Text: req.Instructions}}
	if req.ProductText != "" {
		parts = append(parts, geminiPart{Text: req.ProductText})
	}
	if len(req.Image) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: firstNonEmpty(req.ImageMIME, "image/png"),
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.6,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return "", err
	}
	text := extractText(response)
	if text == "" {
		return "", fmt.Errorf("%w: planning returned no text", domain.ErrProviderFailure)
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Msg("genai: planning response received")
	return text, nil
}

// GenerateImage renders one still image for a shot prompt.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return c.syntheticImage(req), nil
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildImagePrompt(req)}},
		}},
		Tools: []geminiTool{{ImageGeneration: &struct{}{}}},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	width, height := resolutionDimensions(req.Resolution)
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			data, format, err := c.decodeInlineAsset(ctx, part)
			if err != nil || len(data) == 0 {
				continue
			}
			w, h := decodeImageDimensions(data)
			if w == 0 || h == 0 {
				w, h = width, height
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Msg("genai: generated remote image asset")
			return &ImageAsset{
				Format: firstNonEmpty(format, "image/png"),
				Width:  w,
				Height: h,
				Data:   data,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no image content returned", domain.ErrProviderFailure)
}

// GenerateVideo renders a short clip that moves from one still to another.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return c.syntheticVideo(req), nil
	}

	parts := []geminiPart{{Text: buildVideoPrompt(req)}}
	for _, frame := range [][]byte{req.FromImage, req.ToImage} {
		if len(frame) == 0 {
			continue
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(frame),
		}})
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		Tools:    []geminiTool{{VideoGeneration: &struct{}{}}},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			data, format, err := c.decodeInlineAsset(ctx, part)
			if err != nil || len(data) == 0 {
				continue
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Msg("genai: generated remote video asset")
			return &VideoAsset{
				Format:  firstNonEmpty(format, "video/mp4"),
				Seconds: req.Seconds,
				Data:    data,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no video content returned", domain.ErrProviderFailure)
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.classifyError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

// classifyError maps provider errors onto the domain taxonomy so the stages
// can decide what is retryable. Rate-limit responses become ErrQuotaExceeded.
func (c *Client) classifyError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	message := ""
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("gemini status %d: %s: %w", resp.StatusCode, firstNonEmpty(message, "rate limited"), domain.ErrQuotaExceeded)
	}
	if message != "" {
		return fmt.Errorf("gemini status %d: %s: %w", resp.StatusCode, message, domain.ErrProviderFailure)
	}
	return fmt.Errorf("gemini status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
}

func (c *Client) decodeInlineAsset(ctx context.Context, part geminiPart) ([]byte, string, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, "", fmt.Errorf("decode inline data: %w", err)
		}
		return data, part.InlineData.MimeType, nil
	}
	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return nil, "", err
		}
		return data, firstNonEmpty(part.FileData.MimeType, mime), nil
	}
	return nil, "", nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func extractText(resp geminiGenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

func buildImagePrompt(req ImageRequest) string {
	var b strings.Builder
	prompt := strings.TrimSpace(req.Prompt)
	if prompt != "" {
		b.WriteString(prompt)
	}
	if b.Len() == 0 {
		b.WriteString("Create a marketing product still")
	}
	b.WriteString("\nAspect ratio: 9:16 vertical")
	if res := strings.TrimSpace(req.Resolution); res != "" {
		b.WriteString("\nResolution tier: ")
		b.WriteString(res)
	}
	return b.String()
}

func buildVideoPrompt(req VideoRequest) string {
	var b strings.Builder
	prompt := strings.TrimSpace(req.MotionPrompt)
	if prompt != "" {
		b.WriteString(prompt)
	} else {
		b.WriteString("Smoothly morph the first image into the second image")
	}
	if req.Seconds > 0 {
		fmt.Fprintf(&b, "\nClip length: %.1f seconds", req.Seconds)
	}
	b.WriteString("\nThe first attached image is the opening frame, the second is the closing frame.")
	return b.String()
}

// syntheticPlan emits a valid storyboard for the requested cut count, with the
// opening and closing transitions generative and the rest local, mirroring the
// cost-optimization policy the real prompt asks for.
func (c *Client) syntheticPlan(req PlanRequest) (string, error) {
	cuts := req.CutCount
	if cuts < 2 {
		cuts = 2
	}
	transitionSeconds := 0.8
	shotSeconds := (float64(req.TotalSeconds) - transitionSeconds*float64(cuts-1)) / float64(cuts)
	if req.TotalSeconds <= 0 || shotSeconds < 1 {
		shotSeconds = 3
	}
	effects := []string{domain.EffectCrossfade, domain.EffectZoomIn, domain.EffectPan, domain.EffectFadeToBlack, domain.EffectZoomOut}

	var board domain.Storyboard
	for i := 1; i <= cuts; i++ {
		hero := i == 1 || i == cuts
		resolution := domain.ResolutionStandard
		if hero {
			resolution = domain.ResolutionHero
		}
		board = append(board, domain.StoryboardItem{Shot: &domain.Shot{
			Cut:              i,
			SceneDescription: fmt.Sprintf("Scene %d for %s", i, firstNonEmpty(req.ProductText, "the product")),
			ImagePrompt:      fmt.Sprintf("Vertical marketing still %d of %d. %s", i, cuts, req.ProductText),
			Duration:         round1(shotSeconds),
			IsHeroShot:       hero,
			Resolution:       resolution,
		}})
		if i == cuts {
			break
		}
		method := domain.MethodLocal
		reason := "low-impact cut, local effect is sufficient"
		if i == 1 || i == cuts-1 {
			method = domain.MethodGenerative
			reason = "high-impact cut framing the video"
		}
		board = append(board, domain.StoryboardItem{Transition: &domain.Transition{
			Method:   method,
			Effect:   effects[(i-1)%len(effects)],
			Duration: transitionSeconds,
			Reason:   reason,
		}})
	}

	data, err := json.Marshal(board)
	if err != nil {
		return "", err
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Int("cuts", cuts).
		Msg("genai: generated synthetic storyboard")
	return string(data), nil
}

func (c *Client) syntheticImage(req ImageRequest) *ImageAsset {
	width, height := resolutionDimensions(req.Resolution)
	seed := deterministicSeed(req.RequestID, req.Prompt, req.Resolution)
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Msg("genai: generated synthetic image asset")
	return &ImageAsset{
		Format: "image/png",
		Width:  width,
		Height: height,
		Data:   renderSyntheticImage(width, height, seed),
	}
}

func (c *Client) syntheticVideo(req VideoRequest) *VideoAsset {
	seed := deterministicSeed(req.RequestID, req.MotionPrompt, c.model)
	lines := []string{
		"Synthetic Gemini clip placeholder",
		fmt.Sprintf("Seed: %s", seed),
		fmt.Sprintf("Motion: %s", strings.TrimSpace(req.MotionPrompt)),
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Msg("genai: generated synthetic video asset")
	return &VideoAsset{
		Format:  "video/mp4",
		Seconds: req.Seconds,
		Data:    []byte(strings.Join(lines, "\n")),
	}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 720
	}
	if height <= 0 {
		height = 1280
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := maxInt(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, minInt(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	r := mustParseHexByte(segment[0:2])
	g := mustParseHexByte(segment[2:4])
	b := mustParseHexByte(segment[4:6])
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// resolutionDimensions maps a resolution tier to 9:16 vertical dimensions.
func resolutionDimensions(resolution string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(resolution)) {
	case domain.ResolutionHero:
		return 1080, 1920
	default:
		return 720, 1280
	}
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
