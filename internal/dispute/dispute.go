// Package dispute implements the Dispute Executor (C4, spec.md §4.4):
// builds and broadcasts a dispute-closure-for contract call from a signed
// state. Grounded on the teacher's RPCNodeClient.MintWithSig pattern
// (services/payments-gateway/node_client.go) for the build-args/sign/
// broadcast/decode-txid shape, generalized from a fixed mint voucher to
// the dispute-closure-for argument list spec.md §4.4 names, and on the
// "real/noop/mock" pluggable-backend convention spec.md §4.4 calls for.
package dispute

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/signer"
	"github.com/stackflow/watchtower/internal/stacksapi"
	"github.com/stackflow/watchtower/internal/structdata"
)

// Request is the input to SubmitDispute (spec.md §4.4).
type Request struct {
	ContractID  string
	Key         model.PipeKey
	State       model.SignatureStateRecord
	TriggerTxid string
}

// Result is the outcome of a successful SubmitDispute.
type Result struct {
	Txid string
}

// Executor is implemented by the real, noop, and mock variants (spec.md §4.4).
type Executor interface {
	SubmitDispute(ctx context.Context, req Request) (Result, error)
}

// Noop always fails, for deployments with no configured signing key
// (spec.md §4.4: "noop: always fails with 'dispute executor disabled'").
type Noop struct{}

func (Noop) SubmitDispute(ctx context.Context, req Request) (Result, error) {
	return Result{}, fmt.Errorf("dispute executor disabled")
}

// Mock returns deterministic increasing txids for tests (spec.md §4.4:
// "mock: returns 0xmockNNNNNNNN with monotonically increasing N").
type Mock struct {
	counter atomic.Int64
}

func (m *Mock) SubmitDispute(ctx context.Context, req Request) (Result, error) {
	n := m.counter.Add(1)
	return Result{Txid: fmt.Sprintf("0xmock%08d", n)}, nil
}

// Real broadcasts an actual dispute-closure-for contract call, signing
// with Signer and submitting through stacksapi.Client (spec.md §4.4).
type Real struct {
	Client               *stacksapi.Client
	Signer               signer.Signer
	Network              string
	StackflowMessageVer  string
}

func (r *Real) SubmitDispute(ctx context.Context, req Request) (Result, error) {
	if !r.Signer.Enabled() {
		return Result{}, fmt.Errorf("dispute executor: signer not configured")
	}
	if err := r.Signer.EnsureReady(ctx); err != nil {
		return Result{}, err
	}

	st := req.State
	domain := structdata.Domain{
		Name:    req.ContractID,
		Version: r.StackflowMessageVer,
		ChainID: structdata.ChainID(r.Network),
	}
	var hashedSecret []byte
	if st.Secret != "" {
		raw, err := hex.DecodeString(trimHex(st.Secret))
		if err != nil {
			return Result{}, apperr.Validation("invalid secret hex")
		}
		hashedSecret = structdata.HashSecret(raw)
	}
	msg := structdata.Message{
		Key:          req.Key,
		Balance1:     orientedBalance(req.Key, st, true),
		Balance2:     orientedBalance(req.Key, st, false),
		Nonce:        st.Nonce,
		Action:       st.Action,
		Actor:        st.Actor,
		HashedSecret: hashedSecret,
		ValidAfter:   st.ValidAfter,
	}
	digest, err := structdata.Digest(domain, msg)
	if err != nil {
		return Result{}, err
	}
	// authSig authenticates the broadcast envelope itself (spec.md §4.4:
	// "signs with a configured private key"); it is not a contract
	// argument -- mySignature/theirSignature pass through from the
	// signature-state row unchanged in buildDisputeClosureTx.
	authSig, err := r.Signer.Sign(ctx, digest)
	if err != nil {
		return Result{}, fmt.Errorf("dispute executor: sign: %w", err)
	}

	rawTx, err := buildDisputeClosureTx(req, authSig)
	if err != nil {
		return Result{}, err
	}
	resp, err := r.Client.Broadcast(ctx, rawTx)
	if err != nil {
		return Result{}, fmt.Errorf("dispute executor: broadcast: %w", err)
	}
	return Result{Txid: resp.Txid}, nil
}

// orientedBalance reports the party-1/party-2 balance from the state
// record as the canonical-orientation pair the contract call expects
// (spec.md §4.4 argument order; §4.3 canonical orientation rule applied
// identically here).
func orientedBalance(key model.PipeKey, st model.SignatureStateRecord, wantPrincipal1 bool) *uint256.Int {
	isP1, ok := key.Orientation(st.ForPrincipal)
	if !ok {
		return st.MyBalance
	}
	if isP1 == wantPrincipal1 {
		return st.MyBalance
	}
	return st.TheirBalance
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
