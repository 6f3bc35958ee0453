package watchtower

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/verifier"
)

// UpsertInput is the untyped-ish input to UpsertSignatureState, already
// shape/type-checked by the caller (the HTTP handler or co-signer) per
// spec.md §4.5.4 step 1.
type UpsertInput struct {
	ContractID    string
	ForPrincipal  string
	WithPrincipal string
	Token         string
	Amount        *uint256.Int
	MyBalance     *uint256.Int
	TheirBalance  *uint256.Int
	MySignature   string
	TheirSignature string
	Nonce         *uint256.Int
	Action        model.Action
	Actor         string
	Secret        string
	ValidAfter    *uint256.Int
	BeneficialOnly bool
}

// UpsertOptions customizes UpsertSignatureState (spec.md §4.5.4: the
// co-signer calls with SkipVerification true since it already verified).
type UpsertOptions struct {
	SkipVerification bool
}

// UpsertOutcome reports what UpsertSignatureState actually did.
type UpsertOutcome struct {
	Stored   bool
	Replaced bool
	Reason   string
	State    model.SignatureStateRecord
}

// UpsertSignatureState implements spec.md §4.5.4.
func (c *Core) UpsertSignatureState(ctx context.Context, in UpsertInput, opts UpsertOptions) (UpsertOutcome, error) {
	if err := validateUpsertInput(in); err != nil {
		return UpsertOutcome{}, err
	}

	key, err := model.Canonicalize(in.ForPrincipal, in.WithPrincipal, in.Token)
	if err != nil {
		return UpsertOutcome{}, apperr.Validation(err.Error())
	}
	pipeID := key.PipeID()

	if len(c.WatchedPrincipals) > 0 {
		if _, ok := c.WatchedPrincipals[in.ForPrincipal]; !ok {
			return UpsertOutcome{}, apperr.PrincipalNotWatched(in.ForPrincipal)
		}
	}

	if !opts.SkipVerification {
		p1Balance, p2Balance := orientedPair(key, in.ForPrincipal, in.MyBalance, in.TheirBalance)
		result, err := c.Verifier.VerifySignatureState(ctx, verifier.Input{
			ContractID:   in.ContractID,
			Key:          key,
			Balance1:     p1Balance,
			Balance2:     p2Balance,
			Nonce:        in.Nonce,
			Action:       in.Action,
			Actor:        in.Actor,
			Signature:    in.TheirSignature,
			Signer:       in.WithPrincipal,
			ValidAfter:   in.ValidAfter,
		})
		if err != nil {
			return UpsertOutcome{}, err
		}
		if !result.Valid {
			reason := result.Reason
			if reason == "" {
				reason = "invalid-signature"
			}
			return UpsertOutcome{}, apperr.SignatureInvalid(reason)
		}
	}

	stateID := model.SignatureStateID(in.ContractID, pipeID, in.ForPrincipal)
	existing, err := c.Store.GetSignatureState(ctx, stateID)
	if err != nil {
		return UpsertOutcome{}, err
	}
	if existing != nil && in.Nonce != nil && existing.Nonce != nil && existing.Nonce.Cmp(in.Nonce) >= 0 {
		return UpsertOutcome{Stored: false, Replaced: false, Reason: "nonce-too-low", State: *existing}, nil
	}

	rec := model.SignatureStateRecord{
		StateID:        stateID,
		ContractID:     in.ContractID,
		PipeID:         pipeID,
		ForPrincipal:   in.ForPrincipal,
		WithPrincipal:  in.WithPrincipal,
		Token:          in.Token,
		Amount:         in.Amount,
		MyBalance:      in.MyBalance,
		TheirBalance:   in.TheirBalance,
		MySignature:    in.MySignature,
		TheirSignature: in.TheirSignature,
		Nonce:          in.Nonce,
		Action:         in.Action,
		Actor:          in.Actor,
		Secret:         in.Secret,
		ValidAfter:     in.ValidAfter,
		BeneficialOnly: in.BeneficialOnly,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := c.Store.UpsertSignatureState(ctx, rec); err != nil {
		return UpsertOutcome{}, err
	}

	if closure, err := c.Store.GetClosure(ctx, pipeID); err != nil {
		return UpsertOutcome{}, err
	} else if closure != nil {
		if err := c.closureResponse(ctx, *closure); err != nil {
			c.Logger.Error("closure response after upsert failed", "error", err, "pipeId", pipeID)
		}
	}

	return UpsertOutcome{Stored: true, Replaced: existing != nil, State: rec}, nil
}

// orientedPair returns (balance-1, balance-2) given forPrincipal's
// (myBalance, theirBalance) pair, in canonical orientation (spec.md §4.3:
// "sends balance-1/balance-2 in canonical-principal order").
func orientedPair(key model.PipeKey, forPrincipal string, myBalance, theirBalance *uint256.Int) (*uint256.Int, *uint256.Int) {
	isP1, ok := key.Orientation(forPrincipal)
	if !ok || isP1 {
		return myBalance, theirBalance
	}
	return theirBalance, myBalance
}

func validateUpsertInput(in UpsertInput) error {
	if in.ContractID == "" {
		return apperr.Validation("contractId is required")
	}
	if in.ForPrincipal == "" || in.WithPrincipal == "" {
		return apperr.Validation("forPrincipal and withPrincipal are required")
	}
	if in.ForPrincipal == in.WithPrincipal {
		return apperr.Validation("forPrincipal and withPrincipal must differ")
	}
	if in.Nonce == nil {
		return apperr.Validation("nonce is required")
	}
	if len(trimHexPrefix(in.TheirSignature)) != 130 {
		return apperr.Validation("theirSignature must be 65 bytes of hex")
	}
	if in.MyBalance == nil || in.TheirBalance == nil {
		return apperr.Validation("myBalance and theirBalance are required")
	}
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
