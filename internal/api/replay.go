package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"forge/internal/domain"
	"forge/internal/ingest"
)

// ReplayRequest is the request body for POST /api/v1/ticks/replay.
type ReplayRequest struct {
	Ticks []ingest.TickEvent `json:"ticks"`
}

// ReplayResponse summarizes what a batch of replayed ticks did to the
// session.
type ReplayResponse struct {
	Total        int `json:"total"`
	Fills        int `json:"fills"`
	Liquidations int `json:"liquidations"`
	Updates      int `json:"updates"`
}

// handleReplayTicks drives a batch of recorded ticks through the live
// matching pipeline, in timestamp order. This is how backtests and
// session replays run against the real engine.
func (s *Server) handleReplayTicks(w http.ResponseWriter, r *http.Request) {
	var req ReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if len(req.Ticks) == 0 {
		writeError(w, http.StatusBadRequest, "ticks array is empty")
		return
	}

	if len(req.Ticks) > 10000 {
		writeError(w, http.StatusBadRequest, "too many ticks: max 10000 per request")
		return
	}

	// Validate and convert all ticks up front before applying any
	ticks := make([]domain.PriceTick, 0, len(req.Ticks))
	for i, event := range req.Ticks {
		if err := event.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("tick[%d] (%s): %v", i, event.Symbol, err))
			return
		}
		tick, err := event.ToDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("tick[%d] (%s): %v", i, event.Symbol, err))
			return
		}
		ticks = append(ticks, tick)
	}

	// Sort by instant, ascending, so the replay observes the original
	// event order. Timestamps may carry mixed UTC offsets, so the raw
	// strings are not sortable.
	sort.Slice(ticks, func(i, j int) bool {
		return ticks[i].Timestamp.Before(ticks[j].Timestamp)
	})

	resp := ReplayResponse{Total: len(ticks)}
	for _, tick := range ticks {
		outcome := s.session.ProcessTick(tick)
		resp.Fills += len(outcome.Fills)
		resp.Liquidations += len(outcome.Liquidations)
		resp.Updates += len(outcome.UpdatedPositions)
	}

	writeJSON(w, http.StatusOK, resp)
}
