package handlers

import (
	"encoding/json"
	"net/http"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/storage"
)

// App bundles the dependencies the HTTP handlers need. AssetBaseURL prefixes
// storage keys into URLs the static file mount resolves.
type App struct {
	Repo         domain.VideoJobRepository
	Store        *storage.FileStore
	Tiers        domain.TierCatalog
	Logger       infra.Logger
	AssetBaseURL string
}

func NewApp(repo domain.VideoJobRepository, store *storage.FileStore, tiers domain.TierCatalog, logger infra.Logger, assetBaseURL string) *App {
	if tiers == nil {
		tiers = domain.DefaultTierCatalog()
	}
	return &App{Repo: repo, Store: store, Tiers: tiers, Logger: logger, AssetBaseURL: assetBaseURL}
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
