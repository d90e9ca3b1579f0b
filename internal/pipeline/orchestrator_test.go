package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/planner"
	"storyreel/internal/providers/video"
	"storyreel/internal/render"
	"storyreel/internal/storage"
)

type fakeRepo struct {
	statuses    []domain.JobStatus
	steps       []string
	storyboards []domain.Storyboard
	shots       map[int]domain.ShotArtifact
	transitions map[string]domain.TransitionArtifact
	failedMsg   string
	failed      bool
	finalKey    string
	thumbKey    string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		shots:       make(map[int]domain.ShotArtifact),
		transitions: make(map[string]domain.TransitionArtifact),
	}
}

func (r *fakeRepo) Create(ctx context.Context, job *domain.VideoJob) error { return nil }

func (r *fakeRepo) GetByID(ctx context.Context, jobID string) (*domain.VideoJob, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) ClaimPending(ctx context.Context) (*domain.VideoJob, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, step string) error {
	r.statuses = append(r.statuses, status)
	r.steps = append(r.steps, step)
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	r.failed = true
	r.failedMsg = errMsg
	return nil
}

func (r *fakeRepo) SaveStoryboard(ctx context.Context, jobID string, storyboard domain.Storyboard) error {
	r.storyboards = append(r.storyboards, storyboard)
	return nil
}

func (r *fakeRepo) SaveShotArtifact(ctx context.Context, jobID string, cut int, artifact domain.ShotArtifact) error {
	r.shots[cut] = artifact
	return nil
}

func (r *fakeRepo) SaveTransitionArtifact(ctx context.Context, jobID, key string, artifact domain.TransitionArtifact) error {
	r.transitions[key] = artifact
	return nil
}

func (r *fakeRepo) SetResult(ctx context.Context, jobID, finalVideoKey, thumbnailKey string) error {
	r.finalKey = finalVideoKey
	r.thumbKey = thumbnailKey
	return nil
}

type fakePlanner struct {
	board    domain.Storyboard
	warnings []string
	err      error
}

func (p *fakePlanner) Plan(ctx context.Context, req planner.Request) (domain.Storyboard, []string, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.board, p.warnings, nil
}

// fakeImages fails by prompt so individual shots can be broken in tests. The
// errs slice, when set, is consumed one call at a time regardless of prompt.
type fakeImages struct {
	failPrompts map[string]error
	errs        []error
	calls       int
}

func (g *fakeImages) RenderShot(ctx context.Context, req image.ShotRequest) (*image.Asset, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if err, ok := g.failPrompts[req.Prompt]; ok {
		return nil, err
	}
	return &image.Asset{Format: "image/png", Data: []byte("png:" + req.Prompt)}, nil
}

type fakeVideos struct {
	err   error
	calls int
}

func (g *fakeVideos) RenderTransition(ctx context.Context, req video.TransitionRequest) (*video.Asset, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &video.Asset{Format: "video/mp4", Seconds: req.Seconds, Data: []byte("mp4:" + req.MotionPrompt)}, nil
}

type fakeComposer struct {
	result *render.Result
	err    error
	jobs   []*domain.VideoJob
}

func (c *fakeComposer) Compose(ctx context.Context, job *domain.VideoJob) (*render.Result, error) {
	c.jobs = append(c.jobs, job)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

// testBoard builds an alternating storyboard of cuts shots, with the opening
// and closing transitions generative, in the shape the planner produces for a
// standard tier job.
func testBoard(cuts int) domain.Storyboard {
	var board domain.Storyboard
	for i := 1; i <= cuts; i++ {
		hero := i == 1 || i == cuts
		resolution := domain.ResolutionStandard
		if hero {
			resolution = domain.ResolutionHero
		}
		board = append(board, domain.StoryboardItem{Shot: &domain.Shot{
			Cut:              i,
			SceneDescription: fmt.Sprintf("scene %d", i),
			ImagePrompt:      fmt.Sprintf("prompt-%d", i),
			Duration:         3.5,
			IsHeroShot:       hero,
			Resolution:       resolution,
		}})
		if i == cuts {
			break
		}
		method := domain.MethodLocal
		if i == 1 || i == cuts-1 {
			method = domain.MethodGenerative
		}
		board = append(board, domain.StoryboardItem{Transition: &domain.Transition{
			Method:   method,
			Effect:   domain.EffectCrossfade,
			Duration: 0.8,
		}})
	}
	return board
}

type orchestratorFixture struct {
	repo     *fakeRepo
	planner  *fakePlanner
	images   *fakeImages
	videos   *fakeVideos
	composer *fakeComposer
	sleeps   *sleepRecorder
	store    *storage.FileStore
	orch     *Orchestrator
	job      *domain.VideoJob
}

func newFixture(t *testing.T, board domain.Storyboard) *orchestratorFixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	job := &domain.VideoJob{
		ID:          "job-1",
		UserID:      "user-1",
		ProductName: "Trail Bottle",
		Tier:        domain.TierStandard,
		Status:      domain.JobStatusPending,
	}
	sourceKey, err := store.Write(context.Background(), storage.SourceImageKey(job.UserID, job.ID), []byte("source-image"))
	if err != nil {
		t.Fatalf("seed source image: %v", err)
	}
	job.SourceImageKey = sourceKey

	f := &orchestratorFixture{
		repo:     newFakeRepo(),
		planner:  &fakePlanner{board: board},
		images:   &fakeImages{},
		videos:   &fakeVideos{},
		composer: &fakeComposer{result: &render.Result{FinalVideoKey: "final/video.mp4", ThumbnailKey: "final/thumbnail.jpg", Duration: 25, ClipCount: 11}},
		sleeps:   &sleepRecorder{},
		store:    store,
		job:      job,
	}
	logger := zerolog.New(io.Discard)
	f.orch = NewOrchestrator(Options{
		Repo:     f.repo,
		Store:    store,
		Planner:  f.planner,
		Images:   f.images,
		Videos:   f.videos,
		Composer: f.composer,
		Logger:   logger,
		Sleep:    f.sleeps.Sleep,
	})
	return f
}

func TestPipelineCompletesStandardJob(t *testing.T) {
	f := newFixture(t, testBoard(6))

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed: %s", f.job.Status, f.job.ErrorMessage)
	}

	wantStatuses := []domain.JobStatus{
		domain.JobStatusPlanning,
		domain.JobStatusGeneratingImages,
		domain.JobStatusGeneratingVideos,
		domain.JobStatusComposing,
		domain.JobStatusCompleted,
	}
	if len(f.repo.statuses) != len(wantStatuses) {
		t.Fatalf("persisted statuses = %v, want %v", f.repo.statuses, wantStatuses)
	}
	for i := range wantStatuses {
		if f.repo.statuses[i] != wantStatuses[i] {
			t.Fatalf("status %d = %s, want %s", i, f.repo.statuses[i], wantStatuses[i])
		}
	}

	if len(f.repo.storyboards) != 1 {
		t.Fatalf("storyboard persisted %d times, want 1", len(f.repo.storyboards))
	}
	for cut := 1; cut <= 6; cut++ {
		artifact, ok := f.repo.shots[cut]
		if !ok || artifact.URL == "" || artifact.Error != "" {
			t.Fatalf("shot %d artifact = %+v", cut, artifact)
		}
	}
	// Opening and closing transitions are generative: 1-2 and 5-6.
	for _, key := range []string{"1-2", "5-6"} {
		artifact, ok := f.repo.transitions[key]
		if !ok || artifact.URL == "" {
			t.Fatalf("transition %s artifact = %+v", key, artifact)
		}
	}
	if f.videos.calls != 2 {
		t.Fatalf("video calls = %d, want 2", f.videos.calls)
	}
	if f.job.FinalVideoKey != "final/video.mp4" || f.job.ThumbnailKey != "final/thumbnail.jpg" {
		t.Fatalf("result keys = %q %q", f.job.FinalVideoKey, f.job.ThumbnailKey)
	}
	if f.repo.failed {
		t.Fatalf("MarkFailed called on success: %s", f.repo.failedMsg)
	}
}

func TestPipelineToleratesSingleShotFailure(t *testing.T) {
	f := newFixture(t, testBoard(6))
	f.images.failPrompts = map[string]error{
		"prompt-3": fmt.Errorf("blocked: %w", domain.ErrProviderFailure),
	}

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed: %s", f.job.Status, f.job.ErrorMessage)
	}

	artifact := f.repo.shots[3]
	if artifact.URL != "" || artifact.Error == "" {
		t.Fatalf("failed shot artifact = %+v, want recorded error and empty url", artifact)
	}
	for _, cut := range []int{1, 2, 4, 5, 6} {
		if f.repo.shots[cut].URL == "" {
			t.Fatalf("shot %d lost despite unrelated failure", cut)
		}
	}
}

func TestPipelineToleratesTransitionOutage(t *testing.T) {
	f := newFixture(t, testBoard(6))
	f.videos.err = fmt.Errorf("video model down: %w", domain.ErrProviderFailure)

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed: %s", f.job.Status, f.job.ErrorMessage)
	}
	for _, key := range []string{"1-2", "5-6"} {
		artifact := f.repo.transitions[key]
		if artifact.URL != "" || artifact.Error == "" {
			t.Fatalf("transition %s artifact = %+v, want recorded failure", key, artifact)
		}
	}
	if len(f.composer.jobs) != 1 {
		t.Fatal("composition must still run so local fallbacks apply")
	}
}

func TestPipelineFailsWhenAllShotsFail(t *testing.T) {
	f := newFixture(t, testBoard(4))
	f.images.failPrompts = map[string]error{}
	for i := 1; i <= 4; i++ {
		f.images.failPrompts[fmt.Sprintf("prompt-%d", i)] = fmt.Errorf("blocked: %w", domain.ErrProviderFailure)
	}

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", f.job.Status)
	}
	if !f.repo.failed {
		t.Fatal("MarkFailed not called")
	}
	if !strings.Contains(f.repo.failedMsg, "all 4 shots failed") {
		t.Fatalf("failure message = %q", f.repo.failedMsg)
	}
	if len(f.composer.jobs) != 0 {
		t.Fatal("composition must not run after the image stage fails")
	}
}

func TestPipelineRetriesQuotaErrors(t *testing.T) {
	f := newFixture(t, testBoard(2))
	quotaErr := fmt.Errorf("429: %w", domain.ErrQuotaExceeded)
	f.images.errs = []error{quotaErr, quotaErr, nil, nil}

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed: %s", f.job.Status, f.job.ErrorMessage)
	}
	if f.images.calls != 4 {
		t.Fatalf("image calls = %d, want 4 (two retries plus two shots)", f.images.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(f.sleeps.delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", f.sleeps.delays, want)
	}
	for i := range want {
		if f.sleeps.delays[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, f.sleeps.delays[i], want[i])
		}
	}
}

func TestPipelineThrottlesBetweenShots(t *testing.T) {
	f := newFixture(t, testBoard(4))
	f.orch.throttle = 3 * time.Second

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	throttles := 0
	for _, d := range f.sleeps.delays {
		if d == 3*time.Second {
			throttles++
		}
	}
	if throttles != 3 {
		t.Fatalf("throttle sleeps = %d, want 3 for 4 shots", throttles)
	}
}

func TestPipelineFailsOnPlannerError(t *testing.T) {
	f := newFixture(t, nil)
	f.planner.err = fmt.Errorf("%w: only one shot", domain.ErrInvalidStoryboard)

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", f.job.Status)
	}
	if !strings.Contains(f.repo.failedMsg, "planning") {
		t.Fatalf("failure message = %q", f.repo.failedMsg)
	}
}

func TestPipelineRejectsTerminalJob(t *testing.T) {
	f := newFixture(t, testBoard(2))
	f.job.Status = domain.JobStatusCompleted

	if err := f.orch.Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A terminal job stays terminal; the invalid start is recorded, not raised.
	if f.job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed untouched", f.job.Status)
	}
	if len(f.repo.statuses) != 0 {
		t.Fatalf("statuses persisted for terminal job: %v", f.repo.statuses)
	}
	if f.repo.failed {
		t.Fatalf("MarkFailed called for a completed job: %q", f.repo.failedMsg)
	}
}

var _ domain.VideoJobRepository = (*fakeRepo)(nil)
var _ planner.Planner = (*fakePlanner)(nil)
var _ image.Generator = (*fakeImages)(nil)
var _ video.Generator = (*fakeVideos)(nil)
var _ Composer = (*fakeComposer)(nil)
