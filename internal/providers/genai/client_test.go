package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"

	"storyreel/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGeneratePlanSendsMultimodalRequest(t *testing.T) {
	var captured geminiGenerateContentRequest
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if !strings.Contains(req.URL.Path, "gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`), nil
	})

	text, err := client.GeneratePlan(context.Background(), PlanRequest{
		Instructions: "plan it",
		ProductText:  "Product: Bottle.",
		Image:        []byte("img"),
		ImageMIME:    "image/jpeg",
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if text != "[]" {
		t.Fatalf("text = %q", text)
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 3 {
		t.Fatalf("request parts = %+v", captured.Contents)
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("generation config = %+v", captured.GenerationConfig)
	}
	inline := captured.Contents[0].Parts[2].InlineData
	if inline == nil || inline.MimeType != "image/jpeg" {
		t.Fatalf("image part = %+v", captured.Contents[0].Parts[2])
	}
}

func TestClassifyErrorRateLimit(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`), nil
	})

	_, err := client.GeneratePlan(context.Background(), PlanRequest{Instructions: "plan"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error lost provider message: %v", err)
	}
}

func TestClassifyErrorResourceExhaustedWithoutStatus429(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"error":{"status":"RESOURCE_EXHAUSTED","message":"daily limit"}}`), nil
	})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "still"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
}

func TestClassifyErrorServerFailure(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"error":{"message":"backend error"}}`), nil
	})

	_, err := client.GeneratePlan(context.Background(), PlanRequest{Instructions: "plan"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}
	if errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("server failure must not classify as quota: %v", err)
	}
}

func TestGenerateImageDecodesInlineData(t *testing.T) {
	pngBytes := renderSyntheticImage(8, 8, "abcdef0123456789")
	encoded := base64.StdEncoding.EncodeToString(pngBytes)
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body := `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"` + encoded + `"}}]}}]}`
		return jsonResponse(http.StatusOK, body), nil
	})

	asset, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "still", Resolution: "720p"})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if asset.Format != "image/png" {
		t.Fatalf("format = %q", asset.Format)
	}
	if !bytes.Equal(asset.Data, pngBytes) {
		t.Fatal("inline data corrupted")
	}
	if asset.Width != 8 || asset.Height != 8 {
		t.Fatalf("dimensions = %dx%d, want decoded 8x8", asset.Width, asset.Height)
	}
}

func TestGenerateImageNoContent(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]}}]}`), nil
	})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "still"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}
}

func TestSyntheticPlanIsValidStoryboard(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !client.Offline() {
		t.Fatal("keyless client must report offline")
	}

	raw, err := client.GeneratePlan(context.Background(), PlanRequest{CutCount: 4, TotalSeconds: 16})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	var board domain.Storyboard
	if err := json.Unmarshal([]byte(raw), &board); err != nil {
		t.Fatalf("synthetic plan is not valid JSON: %v", err)
	}
	if _, err := board.Validate(4); err != nil {
		t.Fatalf("synthetic plan fails validation: %v", err)
	}
	if got := len(board.Transitions()); got != 3 {
		t.Fatalf("transitions = %d, want 3", got)
	}
}

func TestSyntheticImageIsDeterministic(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	req := ImageRequest{Prompt: "still", Resolution: "1080p", RequestID: "job-1-shot-1"}

	first, err := client.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	second, err := client.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("synthetic image is not deterministic for identical requests")
	}
	if first.Width != 1080 || first.Height != 1920 {
		t.Fatalf("hero dimensions = %dx%d, want 1080x1920", first.Width, first.Height)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(first.Data))
	if err != nil {
		t.Fatalf("synthetic image is not a PNG: %v", err)
	}
	if cfg.Width != 1080 || cfg.Height != 1920 {
		t.Fatalf("encoded dimensions = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestSyntheticVideoCarriesDuration(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	asset, err := client.GenerateVideo(context.Background(), VideoRequest{MotionPrompt: "dissolve", Seconds: 0.8})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if asset.Seconds != 0.8 || len(asset.Data) == 0 {
		t.Fatalf("asset = %+v", asset)
	}
}

func TestResolutionDimensions(t *testing.T) {
	if w, h := resolutionDimensions("1080p"); w != 1080 || h != 1920 {
		t.Fatalf("1080p = %dx%d", w, h)
	}
	if w, h := resolutionDimensions("720p"); w != 720 || h != 1280 {
		t.Fatalf("720p = %dx%d", w, h)
	}
	if w, h := resolutionDimensions(""); w != 720 || h != 1280 {
		t.Fatalf("default = %dx%d", w, h)
	}
}
