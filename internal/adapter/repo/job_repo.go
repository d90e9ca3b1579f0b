package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// VideoJobRepositoryPG implements domain.VideoJobRepository on PostgreSQL.
// Storyboard, brand context and artifact maps live in JSONB columns; artifact
// writes use jsonb_set so each shot or transition lands immediately without
// rewriting the whole map.
type VideoJobRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewVideoJobRepository(pool *pgxpool.Pool) *VideoJobRepositoryPG {
	return &VideoJobRepositoryPG{pool: pool}
}

const jobColumns = `
id, user_id, product_name, product_description, source_image_key, tier,
brand, storyboard, shot_artifacts, transition_artifacts,
final_video_key, thumbnail_key, status, current_step, error_message,
created_at, updated_at, completed_at`

// Create inserts a new job record in pending state.
func (r *VideoJobRepositoryPG) Create(ctx context.Context, job *domain.VideoJob) error {
	brand, err := marshalNullable(job.Brand)
	if err != nil {
		return fmt.Errorf("encode brand context: %w", err)
	}
	query := `
INSERT INTO video_jobs (id, user_id, product_name, product_description, source_image_key, tier, brand, status, current_step)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.ProductName,
		job.ProductDescription,
		job.SourceImageKey,
		job.Tier,
		brand,
		job.Status,
		job.CurrentStep,
	)
	return err
}

// GetByID fetches a full job snapshot.
func (r *VideoJobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.VideoJob, error) {
	query := `SELECT ` + jobColumns + ` FROM video_jobs WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimPending atomically claims the oldest pending job for this worker and
// moves it to planning, so two workers can never own the same record.
func (r *VideoJobRepositoryPG) ClaimPending(ctx context.Context) (*domain.VideoJob, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM video_jobs
    WHERE status = 'pending'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE video_jobs
    SET status = 'planning', updated_at = now()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING ` + jobColumns + `
)
SELECT * FROM claimed;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// UpdateStatus persists a state transition and the observability step text.
func (r *VideoJobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, step string) error {
	query := `
UPDATE video_jobs
SET status = $2,
    current_step = $3,
    updated_at = now(),
    completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, status, step)
	return err
}

// MarkFailed records the terminal failure with its human-readable message.
// Terminal rows are left untouched; completed and failed never transition.
func (r *VideoJobRepositoryPG) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	query := `
UPDATE video_jobs
SET status = 'failed',
    error_message = $2,
    updated_at = now()
WHERE id = $1
  AND status NOT IN ('completed', 'failed');
`
	_, err := r.pool.Exec(ctx, query, jobID, errMsg)
	return err
}

// SaveStoryboard persists the planned storyboard.
func (r *VideoJobRepositoryPG) SaveStoryboard(ctx context.Context, jobID string, storyboard domain.Storyboard) error {
	data, err := json.Marshal(storyboard)
	if err != nil {
		return fmt.Errorf("encode storyboard: %w", err)
	}
	query := `UPDATE video_jobs SET storyboard = $2, updated_at = now() WHERE id = $1;`
	_, err = r.pool.Exec(ctx, query, jobID, data)
	return err
}

// SaveShotArtifact writes one shot's outcome through immediately.
func (r *VideoJobRepositoryPG) SaveShotArtifact(ctx context.Context, jobID string, cut int, artifact domain.ShotArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode shot artifact: %w", err)
	}
	query := `
UPDATE video_jobs
SET shot_artifacts = jsonb_set(COALESCE(shot_artifacts, '{}'::jsonb), ARRAY[$2::text], $3::jsonb),
    updated_at = now()
WHERE id = $1;
`
	_, err = r.pool.Exec(ctx, query, jobID, fmt.Sprintf("%d", cut), data)
	return err
}

// SaveTransitionArtifact writes one generative transition's outcome.
func (r *VideoJobRepositoryPG) SaveTransitionArtifact(ctx context.Context, jobID, key string, artifact domain.TransitionArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode transition artifact: %w", err)
	}
	query := `
UPDATE video_jobs
SET transition_artifacts = jsonb_set(COALESCE(transition_artifacts, '{}'::jsonb), ARRAY[$2::text], $3::jsonb),
    updated_at = now()
WHERE id = $1;
`
	_, err = r.pool.Exec(ctx, query, jobID, key, data)
	return err
}

// SetResult records the final video and thumbnail references.
func (r *VideoJobRepositoryPG) SetResult(ctx context.Context, jobID, finalVideoKey, thumbnailKey string) error {
	query := `
UPDATE video_jobs
SET final_video_key = $2,
    thumbnail_key = $3,
    updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, finalVideoKey, thumbnailKey)
	return err
}

func scanJob(row pgx.Row) (*domain.VideoJob, error) {
	var (
		job             domain.VideoJob
		brand           []byte
		storyboard      []byte
		shotArtifacts   []byte
		transitionArts  []byte
		finalVideoKey   *string
		thumbnailKey    *string
		currentStep     *string
		errorMessage    *string
		productDescribe *string
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.ProductName,
		&productDescribe,
		&job.SourceImageKey,
		&job.Tier,
		&brand,
		&storyboard,
		&shotArtifacts,
		&transitionArts,
		&finalVideoKey,
		&thumbnailKey,
		&job.Status,
		&currentStep,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.ProductDescription = derefString(productDescribe)
	job.FinalVideoKey = derefString(finalVideoKey)
	job.ThumbnailKey = derefString(thumbnailKey)
	job.CurrentStep = derefString(currentStep)
	job.ErrorMessage = derefString(errorMessage)

	if len(brand) > 0 {
		job.Brand = &domain.BrandContext{}
		if err := json.Unmarshal(brand, job.Brand); err != nil {
			return nil, fmt.Errorf("decode brand context: %w", err)
		}
	}
	if len(storyboard) > 0 {
		if err := json.Unmarshal(storyboard, &job.Storyboard); err != nil {
			return nil, fmt.Errorf("decode storyboard: %w", err)
		}
	}
	job.ShotArtifacts = make(map[int]domain.ShotArtifact)
	if len(shotArtifacts) > 0 {
		if err := json.Unmarshal(shotArtifacts, &job.ShotArtifacts); err != nil {
			return nil, fmt.Errorf("decode shot artifacts: %w", err)
		}
	}
	job.TransitionArtifacts = make(map[string]domain.TransitionArtifact)
	if len(transitionArts) > 0 {
		if err := json.Unmarshal(transitionArts, &job.TransitionArtifacts); err != nil {
			return nil, fmt.Errorf("decode transition artifacts: %w", err)
		}
	}
	return &job, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch b := v.(type) {
	case *domain.BrandContext:
		if b == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.VideoJobRepository = (*VideoJobRepositoryPG)(nil)
