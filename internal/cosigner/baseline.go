package cosigner

import (
	"context"

	"github.com/stackflow/watchtower/internal/model"
)

// resolveBaseline implements spec.md §4.6 step 2: scan the observed pipe
// and our own signature state for (contractId, pipeId, forPrincipal), and
// pick the best candidate by highest nonce, then latest updatedAt, then
// prefer onchain on a tie.
func (s *Service) resolveBaseline(ctx context.Context, contractID, pipeID, forPrincipal string) (*Baseline, error) {
	var candidates []Baseline

	if observed, err := s.Core.Store.GetObservedPipeByPipeID(ctx, contractID, pipeID); err != nil {
		return nil, err
	} else if observed != nil {
		myBalance, ok := observed.Snapshot.BalanceFor(observed.Key, forPrincipal)
		if ok {
			theirBalance, _ := observed.Snapshot.BalanceFor(observed.Key, counterpartyOf(observed.Key, forPrincipal))
			candidates = append(candidates, Baseline{
				Source:       "onchain",
				Nonce:        observed.Snapshot.Nonce,
				MyBalance:    myBalance,
				TheirBalance: theirBalance,
				UpdatedAt:    observed.UpdatedAt,
			})
		}
	}

	stateID := model.SignatureStateID(contractID, pipeID, forPrincipal)
	if st, err := s.Core.Store.GetSignatureState(ctx, stateID); err != nil {
		return nil, err
	} else if st != nil {
		candidates = append(candidates, Baseline{
			Source:       "offchain",
			Nonce:        st.Nonce,
			MyBalance:    st.MyBalance,
			TheirBalance: st.TheirBalance,
			UpdatedAt:    st.UpdatedAt,
		})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if betterBaseline(c, best) {
			best = c
		}
	}
	return &best, nil
}

// betterBaseline reports whether candidate should replace current, per
// spec.md §4.6 step 2's highest-nonce/latest-updatedAt/prefer-onchain rule.
func betterBaseline(candidate, current Baseline) bool {
	cn, kn := candidate.Nonce, current.Nonce
	switch {
	case cn == nil && kn == nil:
	case cn == nil:
		return false
	case kn == nil:
		return true
	default:
		if cmp := cn.Cmp(kn); cmp != 0 {
			return cmp > 0
		}
	}
	if candidate.UpdatedAt.After(current.UpdatedAt) {
		return true
	}
	if candidate.UpdatedAt.Before(current.UpdatedAt) {
		return false
	}
	return candidate.Source == "onchain" && current.Source != "onchain"
}

func counterpartyOf(key model.PipeKey, principal string) string {
	if other, ok := key.Counterparty(principal); ok {
		return other
	}
	return ""
}
