// Package verifier implements the Signature Verifier (C3, spec.md §4.3):
// given a signature-state input, decide valid/invalid under a configurable
// policy. Grounded on the teacher's pluggable-backend pattern (e.g.
// services/escrow-gateway's swappable dispute/settlement backends) and its
// RPCNodeClient call shape, here wired to internal/stacksapi for the
// readonly variant.
package verifier

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/clarity"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/stacksapi"
)

// Input is the canonicalized argument set a verifier checks, built by the
// caller (Watchtower Core or Co-Signer) from a SignatureStateRecord/request
// before the readonly call is made (spec.md §4.3: "MUST canonicalize the
// pipeKey before building arguments ... sends balance-1/balance-2 in
// canonical-principal order, not caller order").
type Input struct {
	ContractID    string
	Key           model.PipeKey
	Balance1      *uint256.Int
	Balance2      *uint256.Int
	Nonce         *uint256.Int
	Action        model.Action
	Actor         string
	Signature     string // 65-byte hex, the signature under test
	Signer        string // principal whose signature is under test
	HashedSecret  []byte
	ValidAfter    *uint256.Int
}

// Result is the verifier's verdict.
type Result struct {
	Valid  bool
	Reason string
}

// Verifier is implemented by the accept-all, reject-all, and readonly
// variants (spec.md §4.3).
type Verifier interface {
	VerifySignatureState(ctx context.Context, in Input) (Result, error)
}

// AcceptAll always reports valid (spec.md §4.3).
type AcceptAll struct{}

func (AcceptAll) VerifySignatureState(ctx context.Context, in Input) (Result, error) {
	return Result{Valid: true}, nil
}

// RejectAll always reports invalid with "invalid-signature" (spec.md §4.3).
type RejectAll struct{}

func (RejectAll) VerifySignatureState(ctx context.Context, in Input) (Result, error) {
	return Result{Valid: false, Reason: "invalid-signature"}, nil
}

// ReadOnly calls the pipe contract's verify-signature-request read-only
// function (spec.md §4.3). contractPrincipal/contractName identify the
// deployed contract; ContractID in Input is the dotted "principal.name"
// form used for domain hashing and lookups.
type ReadOnly struct {
	Client            *stacksapi.Client
	ContractPrincipal string
	ContractName      string
	Sender            string // caller principal for the read-only call
}

func (r *ReadOnly) VerifySignatureState(ctx context.Context, in Input) (Result, error) {
	args, err := readOnlyArgs(in)
	if err != nil {
		return Result{}, err
	}
	resp, err := r.Client.CallReadOnly(ctx, r.ContractPrincipal, r.ContractName, "verify-signature-request", r.Sender, args)
	if err != nil {
		return Result{}, err
	}
	if !resp.Okay {
		return Result{}, fmt.Errorf("verifier: readonly call rejected: %s", resp.Cause)
	}
	val, err := clarity.DecodeHex(resp.Result)
	if err != nil {
		return Result{}, fmt.Errorf("verifier: decode readonly result: %w", err)
	}
	switch val.Kind {
	case clarity.KindResponseOk:
		return Result{Valid: true}, nil
	case clarity.KindResponseErr:
		code := "unknown"
		if val.Inner != nil {
			code = val.Inner.AsUintString()
		}
		return Result{Valid: false, Reason: "err-" + code}, nil
	default:
		return Result{Valid: false, Reason: "unexpected-readonly-response"}, nil
	}
}

// readOnlyArgs renders in's fields as hex-encoded Clarity values in
// canonical-principal order (spec.md §4.3).
func readOnlyArgs(in Input) ([]string, error) {
	token := clarity.None()
	if in.Key.Token != "" {
		token = clarity.Some(clarity.Principal(in.Key.Token))
	}
	secret := clarity.None()
	if len(in.HashedSecret) > 0 {
		secret = clarity.Some(clarity.Buffer(in.HashedSecret))
	}
	validAfter := clarity.None()
	if in.ValidAfter != nil {
		validAfter = clarity.Some(clarity.UInt(in.ValidAfter))
	}
	sigBuf, err := clarity.BufferHex(in.Signature)
	if err != nil {
		return nil, fmt.Errorf("verifier: decode signature hex: %w", err)
	}

	values := []clarity.Value{
		token,
		clarity.Principal(in.Key.Principal1),
		clarity.Principal(in.Key.Principal2),
		clarity.UInt(in.Balance1),
		clarity.UInt(in.Balance2),
		sigBuf,
		clarity.UInt(in.Nonce),
		clarity.UInt(uint256.NewInt(uint64(in.Action))),
		clarity.Principal(in.Actor),
		secret,
		validAfter,
	}
	args := make([]string, len(values))
	for i, v := range values {
		enc, err := clarity.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("verifier: encode argument %d: %w", i, err)
		}
		args[i] = "0x" + hex.EncodeToString(enc)
	}
	return args, nil
}
