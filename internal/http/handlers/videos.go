package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyreel/internal/domain"
	"storyreel/internal/middleware"
	"storyreel/internal/storage"
)

const maxUploadBytes = 16 << 20

type submitResponse struct {
	ID           string           `json:"id"`
	Status       domain.JobStatus `json:"status"`
	Tier         domain.Tier      `json:"tier"`
	PriceCredits int              `json:"price_credits"`
}

type jobResponse struct {
	ID                  string                               `json:"id"`
	UserID              string                               `json:"user_id"`
	ProductName         string                               `json:"product_name"`
	ProductDescription  string                               `json:"product_description,omitempty"`
	Tier                domain.Tier                          `json:"tier"`
	Status              domain.JobStatus                     `json:"status"`
	CurrentStep         string                               `json:"current_step,omitempty"`
	ErrorMessage        string                               `json:"error_message,omitempty"`
	Storyboard          domain.Storyboard                    `json:"storyboard,omitempty"`
	ShotArtifacts       map[int]domain.ShotArtifact          `json:"shot_artifacts,omitempty"`
	TransitionArtifacts map[string]domain.TransitionArtifact `json:"transition_artifacts,omitempty"`
	FinalVideo          string                               `json:"final_video,omitempty"`
	Thumbnail           string                               `json:"thumbnail,omitempty"`
	CreatedAt           time.Time                            `json:"created_at"`
	UpdatedAt           time.Time                            `json:"updated_at"`
	CompletedAt         *time.Time                           `json:"completed_at,omitempty"`
}

// SubmitVideo accepts a multipart job submission: product metadata, a tier
// selector and the source product photo. The job is stored pending; the
// background worker picks it up from there.
func (a *App) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	productName := strings.TrimSpace(r.FormValue("product_name"))
	if productName == "" {
		writeError(w, http.StatusBadRequest, "product_name is required")
		return
	}
	tier, spec := a.Tiers.Lookup(domain.Tier(r.FormValue("tier")))

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	imageBytes, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil || len(imageBytes) == 0 {
		writeError(w, http.StatusBadRequest, "could not read image")
		return
	}

	jobID := uuid.NewString()
	sourceKey, err := a.Store.Write(r.Context(), storage.SourceImageKey(userID, jobID), imageBytes)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("videos: persist source image failed")
		writeError(w, http.StatusInternalServerError, "could not store source image")
		return
	}

	job := &domain.VideoJob{
		ID:                 jobID,
		UserID:             userID,
		ProductName:        productName,
		ProductDescription: strings.TrimSpace(r.FormValue("description")),
		SourceImageKey:     sourceKey,
		Tier:               tier,
		Brand:              brandFromForm(r),
		Status:             domain.JobStatusPending,
		CurrentStep:        "queued",
	}
	if err := a.Repo.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("videos: create job failed")
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	a.Logger.Info().Str("job_id", jobID).Str("tier", string(tier)).Msg("videos: job submitted")
	writeJSON(w, http.StatusAccepted, submitResponse{
		ID:           jobID,
		Status:       job.Status,
		Tier:         tier,
		PriceCredits: spec.PriceCredits,
	})
}

// GetVideo returns the full JobRecord snapshot, including the storyboard,
// partial artifacts and any error message, for polling clients.
func (a *App) GetVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Repo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("videos: fetch job failed")
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		ID:                  job.ID,
		UserID:              job.UserID,
		ProductName:         job.ProductName,
		ProductDescription:  job.ProductDescription,
		Tier:                job.Tier,
		Status:              job.Status,
		CurrentStep:         job.CurrentStep,
		ErrorMessage:        job.ErrorMessage,
		Storyboard:          job.Storyboard,
		ShotArtifacts:       a.resolveShotArtifacts(job.ShotArtifacts),
		TransitionArtifacts: a.resolveTransitionArtifacts(job.TransitionArtifacts),
		FinalVideo:          a.assetURL(job.FinalVideoKey),
		Thumbnail:           a.assetURL(job.ThumbnailKey),
		CreatedAt:           job.CreatedAt,
		UpdatedAt:           job.UpdatedAt,
		CompletedAt:         job.CompletedAt,
	})
}

// assetURL turns a storage key into a URL the static mount serves. Keys pass
// through unchanged when no base URL is configured.
func (a *App) assetURL(key string) string {
	if key == "" || a.AssetBaseURL == "" {
		return key
	}
	return strings.TrimRight(a.AssetBaseURL, "/") + "/" + key
}

func (a *App) resolveShotArtifacts(artifacts map[int]domain.ShotArtifact) map[int]domain.ShotArtifact {
	if len(artifacts) == 0 || a.AssetBaseURL == "" {
		return artifacts
	}
	resolved := make(map[int]domain.ShotArtifact, len(artifacts))
	for cut, artifact := range artifacts {
		artifact.URL = a.assetURL(artifact.URL)
		resolved[cut] = artifact
	}
	return resolved
}

func (a *App) resolveTransitionArtifacts(artifacts map[string]domain.TransitionArtifact) map[string]domain.TransitionArtifact {
	if len(artifacts) == 0 || a.AssetBaseURL == "" {
		return artifacts
	}
	resolved := make(map[string]domain.TransitionArtifact, len(artifacts))
	for key, artifact := range artifacts {
		artifact.URL = a.assetURL(artifact.URL)
		resolved[key] = artifact
	}
	return resolved
}

// brandFromForm assembles the optional brand context; a submission without
// any brand fields plans without one.
func brandFromForm(r *http.Request) *domain.BrandContext {
	brand := domain.BrandContext{
		Name:           strings.TrimSpace(r.FormValue("brand_name")),
		Values:         strings.TrimSpace(r.FormValue("brand_values")),
		TargetAudience: strings.TrimSpace(r.FormValue("target_audience")),
		Tone:           strings.TrimSpace(r.FormValue("tone")),
		Locale:         strings.TrimSpace(r.FormValue("locale")),
	}
	if brand.Locale == "" {
		brand.Locale = middleware.LocaleFromContext(r.Context())
	}
	if brand.Name == "" && brand.Values == "" && brand.TargetAudience == "" && brand.Tone == "" {
		if brand.Locale == "" {
			return nil
		}
	}
	return &brand
}
