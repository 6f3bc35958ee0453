package watchtower

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/dispute"
	"github.com/stackflow/watchtower/internal/model"
)

// closureResponse implements spec.md §4.5.3: on every upserted closure,
// find the best candidate signature state that supersedes it and dispute.
func (c *Core) closureResponse(ctx context.Context, closure model.ClosureRecord) error {
	states, err := c.Store.ListSignatureStatesByPipe(ctx, closure.ContractID, closure.PipeID)
	if err != nil {
		return err
	}

	var candidates []model.SignatureStateRecord
	for _, st := range states {
		if st.ForPrincipal == closure.Closer {
			continue
		}
		candidates = append(candidates, st)
	}
	if len(candidates) == 0 {
		return nil
	}

	model.SortByNonceThenUpdatedDesc(candidates,
		func(s model.SignatureStateRecord) *uint256.Int { return s.Nonce },
		func(s model.SignatureStateRecord) time.Time { return s.UpdatedAt },
	)

	observed, err := c.Store.GetObservedPipeByPipeID(ctx, closure.ContractID, closure.PipeID)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if c.disputeCandidate(ctx, closure, observed, candidate) {
			return nil
		}
	}
	return nil
}

// disputeCandidate evaluates one candidate against spec.md §4.5.3 steps
// 1-5, returning true if a dispute was attempted (win-or-lose, the first
// eligible candidate is the only one tried per ingest -- "only the single
// best candidate per closure is dispatched per ingest").
func (c *Core) disputeCandidate(ctx context.Context, closure model.ClosureRecord, observed *model.ObservedPipeRecord, candidate model.SignatureStateRecord) bool {
	attemptID := model.DisputeAttemptID(closure.ContractID, closure.PipeID, closure.TriggerTxid)

	existing, err := c.Store.GetDisputeAttempt(ctx, attemptID)
	if err != nil {
		c.Logger.Error("dispute attempt lookup failed", "error", err, "attemptId", attemptID)
		return false
	}
	if existing != nil {
		return false
	}

	if candidate.Nonce == nil || closure.Nonce == nil || candidate.Nonce.Cmp(closure.Nonce) <= 0 {
		return false
	}

	if candidate.BeneficialOnly || c.DisputeOnlyBeneficial {
		if observed == nil {
			return false
		}
		accrued, ok := observed.Snapshot.BalanceFor(closure.Key, candidate.ForPrincipal)
		if !ok || candidate.MyBalance == nil || candidate.MyBalance.Cmp(accrued) <= 0 {
			return false
		}
	}

	result, disputeErr := c.Dispute.SubmitDispute(ctx, dispute.Request{
		ContractID:  closure.ContractID,
		Key:         closure.Key,
		State:       candidate,
		TriggerTxid: closure.TriggerTxid,
	})

	rec := model.DisputeAttemptRecord{
		AttemptID:    attemptID,
		ContractID:   closure.ContractID,
		PipeID:       closure.PipeID,
		ForPrincipal: candidate.ForPrincipal,
		TriggerTxid:  closure.TriggerTxid,
	}
	if disputeErr != nil {
		rec.Success = false
		rec.Error = disputeErr.Error()
		c.Logger.Warn("dispute submission failed", "error", disputeErr, "attemptId", attemptID)
	} else {
		rec.Success = true
		rec.DisputeTxid = result.Txid
	}
	if err := c.Store.InsertDisputeAttempt(ctx, rec); err != nil {
		c.Logger.Error("persist dispute attempt failed", "error", err, "attemptId", attemptID)
	}
	return true
}
