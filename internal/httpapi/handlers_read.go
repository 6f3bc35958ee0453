package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// handleHealth implements GET /health (spec.md §6: "liveness + counts").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := s.core.Store.GetSnapshot(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"closures":        len(snap.Closures),
		"observedPipes":   len(snap.ObservedPipes),
		"signatureStates": len(snap.SignatureStates),
		"disputeAttempts": len(snap.DisputeAttempts),
		"recentEvents":    len(snap.RecentEvents),
	})
}

// handleListClosures implements GET /closures.
func (s *Server) handleListClosures(w http.ResponseWriter, r *http.Request) {
	closures, err := s.core.Store.ListClosures(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	views := make([]closureView, 0, len(closures))
	for _, c := range closures {
		views = append(views, renderClosure(c))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// handleListSignatureStates implements GET /signature-states?limit=.
func (s *Server) handleListSignatureStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.core.Store.ListSignatureStates(r.Context(), listLimit(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	views := make([]signatureStateView, 0, len(states))
	for _, st := range states {
		views = append(views, renderSignatureState(st))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// handleListDisputeAttempts implements GET /dispute-attempts?limit=.
func (s *Server) handleListDisputeAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.core.Store.ListDisputeAttempts(r.Context(), listLimit(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	views := make([]disputeAttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, renderDisputeAttempt(a))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// handleListEvents implements GET /events?limit=.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.core.Store.ListRecentEvents(r.Context(), listLimit(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, renderEvent(e))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// handleListPipes implements GET /pipes?limit=&principal= (spec.md §6: a
// merged view of observed-pipe and signature-state records, by stateId,
// preferring the higher nonce, tie -> latest updatedAt, tie -> onchain,
// sorted by nonce descending then updatedAt descending).
func (s *Server) handleListPipes(w http.ResponseWriter, r *http.Request) {
	principal := r.URL.Query().Get("principal")
	limit := listLimit(r)

	observed, err := s.core.Store.ListObservedPipes(r.Context(), principal)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	signatureStates, err := s.core.Store.ListSignatureStates(r.Context(), maxListLimit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	merged := map[string]mergedPipe{}
	for _, o := range observed {
		if principal != "" {
			if _, ok := o.Key.Orientation(principal); !ok {
				continue
			}
		}
		key := model.ObservedStateID(o.ContractID, o.Key.PipeID())
		merged[key] = mergedPipe{
			nonce: o.Snapshot.Nonce,
			view: pipeView{
				PipeID:     o.Key.PipeID(),
				ContractID: o.ContractID,
				Token:      o.Key.Token,
				Principal1: o.Key.Principal1,
				Principal2: o.Key.Principal2,
				Source:     "onchain",
				Nonce:      uintString(o.Snapshot.Nonce),
				Balance1:   uintString(o.Snapshot.Balance1),
				Balance2:   uintString(o.Snapshot.Balance2),
				UpdatedAt:  o.UpdatedAt,
			},
		}
	}
	for _, st := range signatureStates {
		if principal != "" && st.ForPrincipal != principal {
			continue
		}
		key := model.ObservedStateID(st.ContractID, st.PipeID)
		candidate := mergedPipe{
			nonce: st.Nonce,
			view: pipeView{
				PipeID:       st.PipeID,
				ContractID:   st.ContractID,
				Token:        st.Token,
				Source:       "offchain",
				Nonce:        uintString(st.Nonce),
				ForPrincipal: st.ForPrincipal,
				Balance1:     uintString(st.MyBalance),
				Balance2:     uintString(st.TheirBalance),
				UpdatedAt:    st.UpdatedAt,
			},
		}
		existing, ok := merged[key]
		if !ok || betterPipeMerge(candidate, existing) {
			merged[key] = candidate
		}
	}

	rows := make([]mergedPipe, 0, len(merged))
	for _, v := range merged {
		rows = append(rows, v)
	}
	model.SortByNonceThenUpdatedDesc(rows,
		func(v mergedPipe) *uint256.Int { return v.nonce },
		func(v mergedPipe) time.Time { return v.view.UpdatedAt },
	)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	views := make([]pipeView, len(rows))
	for i, row := range rows {
		views[i] = row.view
	}
	writeJSON(w, r, http.StatusOK, views)
}

// mergedPipe pairs a rendered view with its raw nonce, so the sort and
// tie-break can compare *uint256.Int directly instead of re-parsing strings.
type mergedPipe struct {
	view  pipeView
	nonce *uint256.Int
}

// betterPipeMerge implements spec.md §6's merge-by-stateId tie-break:
// higher nonce wins, tie -> latest updatedAt, tie -> prefer onchain.
func betterPipeMerge(candidate, current mergedPipe) bool {
	switch {
	case candidate.nonce == nil && current.nonce == nil:
	case candidate.nonce == nil:
		return false
	case current.nonce == nil:
		return true
	default:
		if cmp := candidate.nonce.Cmp(current.nonce); cmp != 0 {
			return cmp > 0
		}
	}
	if candidate.view.UpdatedAt.After(current.view.UpdatedAt) {
		return true
	}
	if candidate.view.UpdatedAt.Before(current.view.UpdatedAt) {
		return false
	}
	return candidate.view.Source == "onchain" && current.view.Source != "onchain"
}
