package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stackflow/watchtower/internal/apperr"
)

// handleNewBlock implements POST /new_block (spec.md §6): ingest a chain
// block's events through the Watchtower Core. The envelope shape is
// whatever the Stacks event stream sends; chainevent.Parser picks apart
// what it recognizes and ignores the rest.
func (s *Server) handleNewBlock(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid-input", err.Error())
		return
	}
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeAppError(w, r, apperr.ValidationWrap("invalid block payload", err))
		return
	}
	result, err := s.core.Ingest(r.Context(), payload, "new_block")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"observedEvents": result.ObservedEvents,
		"activeClosures": result.ActiveClosures,
	})
}

type burnBlockRequest struct {
	BurnBlockHeight uint64 `json:"burn_block_height"`
}

// handleNewBurnBlock implements POST /new_burn_block (spec.md §6): advances
// the dispute window and expires closures past their deadline. A
// malformed body is ignored rather than rejected, since the burn-block
// feed is best-effort and retries on its own schedule.
func (s *Server) handleNewBurnBlock(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid-input", err.Error())
		return
	}
	var req burnBlockRequest
	if err := json.Unmarshal(body, &req); err != nil || req.BurnBlockHeight == 0 {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"ignored": true})
		return
	}
	expired, err := s.core.IngestBurnBlock(r.Context(), req.BurnBlockHeight, "new_burn_block")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"expiredClosures": expired})
}

// handleIgnored implements the mempool/microblock compatibility no-ops
// (spec.md §6): the watchtower doesn't reason about unconfirmed state.
func (s *Server) handleIgnored(w http.ResponseWriter, r *http.Request) {
	_, _ = readBody(w, r)
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"status": "ignored"})
}
