package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/ladder/internal/app"
)

// maxBodyBytes caps request bodies; a batch of the largest ids fits well below it.
const maxBodyBytes = 1 << 20

// ScoresHandler handles score writes.
type ScoresHandler struct {
	deps Leaderboard
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Leaderboard) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

type updateScoreRequest struct {
	Score *int64 `json:"score"`
}

type updateScoreResponse struct {
	Message   string `json:"message"`
	PlayerID  string `json:"player_id"`
	Score     int64  `json:"score"`
	Persisted bool   `json:"persisted"`
}

type batchRequest struct {
	Scores map[string]int64 `json:"scores"`
}

type batchEntry struct {
	PlayerID  string `json:"player_id"`
	Score     int64  `json:"score,omitempty"`
	Persisted bool   `json:"persisted"`
	Error     string `json:"error,omitempty"`
}

type batchResponse struct {
	Applied int          `json:"applied"`
	Failed  int          `json:"failed"`
	Results []batchEntry `json:"results"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// HandleUpdateScore handles POST /api/players/{playerID}/score.
func (h *ScoresHandler) HandleUpdateScore(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("playerID")

	var req updateScoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Score == nil {
		writeServiceError(w, fmt.Errorf("%w: missing score", ErrBadRequest))
		return
	}

	res, err := h.deps.UpdateScore(r.Context(), playerID, *req.Score)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updateScoreResponse{
		Message:   "score updated",
		PlayerID:  res.PlayerID,
		Score:     res.Score,
		Persisted: res.Persisted(),
	})
}

// HandleUpdateBatch handles POST /api/players/scores. Entries are applied
// independently; the response lists each outcome. When nothing applied the
// joined error decides the status, so a store outage is a 503.
func (h *ScoresHandler) HandleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if len(req.Scores) == 0 {
		writeServiceError(w, fmt.Errorf("%w: empty batch", ErrBadRequest))
		return
	}

	res, err := h.deps.UpdateScoresBatch(r.Context(), req.Scores)
	if len(res.Applied) == 0 && err != nil {
		if errors.Is(err, service.ErrRankingStore) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err)
			return
		}
		writeServiceError(w, err)
		return
	}

	out := batchResponse{
		Applied: len(res.Applied),
		Failed:  len(res.Failed),
		Results: make([]batchEntry, 0, len(req.Scores)),
	}
	for _, a := range res.Applied {
		out.Results = append(out.Results, batchEntry{PlayerID: a.PlayerID, Score: a.Score, Persisted: a.Persisted()})
	}
	for id, err := range res.Failed {
		out.Results = append(out.Results, batchEntry{PlayerID: id, Error: err.Error()})
	}

	status := http.StatusOK
	if out.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, out)
}
