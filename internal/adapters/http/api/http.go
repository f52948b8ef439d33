// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/types"
)

// Leaderboard is the service surface the handlers call.
type Leaderboard interface {
	UpdateScore(ctx context.Context, playerID string, score int64) (service.UpdateResult, error)
	UpdateScoresBatch(ctx context.Context, scores map[string]int64) (service.BatchResult, error)
	TopPlayers(ctx context.Context, limit int) ([]model.Player, error)
	GetRank(ctx context.Context, playerID string) (model.Player, bool, error)
	TotalPlayers(ctx context.Context) (int64, error)
}

// Recovery is the operator surface behind /api/admin.
type Recovery interface {
	NeedsRecovery(ctx context.Context) (bool, error)
	Rebuild(ctx context.Context) (service.RecoveryResult, error)
	Sync(ctx context.Context) (service.RecoveryResult, error)
	ForceUnlock(ctx context.Context) error
}

// Dependencies bundles everything the routes need. *service.Service
// satisfies it.
type Dependencies interface {
	Leaderboard
	Recovery
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers. defaultLimit is
// used for top-N requests without a limit parameter.
func NewServer(deps Dependencies, defaultLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		scoresHandler:      NewScoresHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, defaultLimit),
		rankHandler:        NewRankHandler(deps),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/players/{playerID}/score", MetricsMiddleware(s.scoresHandler.HandleUpdateScore, "update_score"))
	mux.HandleFunc("POST /api/players/scores", MetricsMiddleware(s.scoresHandler.HandleUpdateBatch, "update_batch"))
	mux.HandleFunc("GET /api/players/{playerID}/rank", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /api/leaderboard/top", MetricsMiddleware(s.leaderboardHandler.HandleGetTop, "leaderboard"))
	mux.HandleFunc("GET /api/leaderboard/count", MetricsMiddleware(s.leaderboardHandler.HandleGetCount, "count"))

	mux.HandleFunc("GET /api/admin/recovery", MetricsMiddleware(s.adminHandler.HandleNeedsRecovery, "admin_recovery"))
	mux.HandleFunc("POST /api/admin/rebuild", MetricsMiddleware(s.adminHandler.HandleRebuild, "admin_rebuild"))
	mux.HandleFunc("POST /api/admin/sync", MetricsMiddleware(s.adminHandler.HandleSync, "admin_sync"))
	mux.HandleFunc("DELETE /api/admin/lock", MetricsMiddleware(s.adminHandler.HandleUnlock, "admin_unlock"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service failures onto status codes: validation
// is the caller's fault, everything else is an unavailable backend.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrRankingStore), errors.Is(err, service.ErrRepository):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func toEntry(p model.Player) Entry {
	return Entry{Rank: p.Rank, PlayerID: p.PlayerID, Score: p.Score}
}
