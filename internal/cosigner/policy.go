package cosigner

import (
	"context"
	"encoding/hex"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/structdata"
	"github.com/stackflow/watchtower/internal/verifier"
)

// orientedPair returns (balance-1, balance-2) given forPrincipal's
// (myBalance, theirBalance) pair, in canonical orientation (spec.md §4.3).
func orientedPair(key model.PipeKey, forPrincipal string, myBalance, theirBalance *uint256.Int) (*uint256.Int, *uint256.Int) {
	isP1, ok := key.Orientation(forPrincipal)
	if !ok || isP1 {
		return myBalance, theirBalance
	}
	return theirBalance, myBalance
}

func hexRSV(rsv [65]byte) string {
	return hex.EncodeToString(rsv[:])
}

// enforcePolicy implements spec.md §4.6 step 3: reject stale, regressive,
// or non-beneficial-for-the-counterparty transfer requests.
func enforcePolicy(req Request, baseline Baseline) error {
	if baseline.Nonce != nil && req.Nonce.Cmp(baseline.Nonce) <= 0 {
		return apperr.Policy(409, "nonce-too-low", "request nonce does not exceed the known baseline")
	}
	if baseline.MyBalance != nil && req.MyBalance.Cmp(baseline.MyBalance) < 0 {
		return apperr.Policy(403, "balance-decrease-not-allowed", "request would decrease our balance")
	}

	if req.Action == model.ActionTransfer {
		if baseline.MyBalance != nil && baseline.TheirBalance != nil {
			wantTotal := new(uint256.Int).Add(baseline.MyBalance, baseline.TheirBalance)
			gotTotal := new(uint256.Int).Add(req.MyBalance, req.TheirBalance)
			if wantTotal.Cmp(gotTotal) != 0 {
				return apperr.Policy(409, "invalid-transfer-total", "transfer does not conserve the pipe total")
			}
		}
		if baseline.MyBalance != nil && req.MyBalance.Cmp(baseline.MyBalance) <= 0 {
			return apperr.Policy(403, "transfer-not-beneficial", "transfer does not increase our balance")
		}
	}
	return nil
}

// verifyCounterparty implements spec.md §4.6 step 4: the incoming
// theirSignature must verify as the counterparty's signature over the
// canonical tuple before we sign anything ourselves.
func (s *Service) verifyCounterparty(ctx context.Context, req Request, key model.PipeKey, hashedSecret []byte) error {
	p1Balance, p2Balance := orientedPair(key, req.ForPrincipal, req.MyBalance, req.TheirBalance)
	result, err := s.Verifier.VerifySignatureState(ctx, verifier.Input{
		ContractID:   req.ContractID,
		Key:          key,
		Balance1:     p1Balance,
		Balance2:     p2Balance,
		Nonce:        req.Nonce,
		Action:       req.Action,
		Actor:        req.Actor,
		Signature:    req.TheirSignature,
		Signer:       req.WithPrincipal,
		HashedSecret: hashedSecret,
		ValidAfter:   req.ValidAfter,
	})
	if err != nil {
		return err
	}
	if !result.Valid {
		reason := result.Reason
		if reason == "" {
			reason = "invalid-signature"
		}
		return apperr.SignatureInvalid(reason)
	}
	return nil
}

// produceSignature implements spec.md §4.6 step 5: build the same
// structured-data message the counterparty signed and sign it ourselves.
func (s *Service) produceSignature(ctx context.Context, req Request, key model.PipeKey, hashedSecret []byte) (string, error) {
	if !s.Signer.Enabled() {
		return "", apperr.CoSigner("co-signer signing key not configured", nil)
	}
	if err := s.Signer.EnsureReady(ctx); err != nil {
		return "", apperr.CoSigner("co-signer key not ready", err)
	}

	domain := structdata.Domain{
		Name:    req.ContractID,
		Version: s.StackflowMessageVer,
		ChainID: structdata.ChainID(s.Network),
	}
	myBalance, theirBalance := orientedPair(key, req.ForPrincipal, req.MyBalance, req.TheirBalance)
	msg := structdata.Message{
		Key:          key,
		Balance1:     myBalance,
		Balance2:     theirBalance,
		Nonce:        req.Nonce,
		Action:       req.Action,
		Actor:        req.Actor,
		HashedSecret: hashedSecret,
		ValidAfter:   req.ValidAfter,
	}
	digest, err := structdata.Digest(domain, msg)
	if err != nil {
		return "", err
	}
	rsv, err := s.Signer.Sign(ctx, digest)
	if err != nil {
		return "", apperr.CoSigner("co-signer failed to sign", err)
	}
	return hexRSV(rsv), nil
}
