// Package cosigner implements the Co-Signer Service (C6, spec.md §4.6):
// parses a sign request, resolves a baseline from the store, enforces
// signing policy, verifies the counterparty's signature via C3, produces
// our own signature via C9, and persists through the Watchtower Core.
// Grounded on the teacher's swap-gateway settlement flow (parse -> verify
// counterparty -> sign -> persist), generalized to the pipe baseline/
// policy rules spec.md §4.6 names.
package cosigner

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/signer"
	"github.com/stackflow/watchtower/internal/structdata"
	"github.com/stackflow/watchtower/internal/verifier"
	"github.com/stackflow/watchtower/internal/watchtower"
)

// Service is the Co-Signer Service (spec.md §4.6). It holds a reference to
// the Core, never the reverse (spec.md §9: "unidirectional composition").
type Service struct {
	Core     *watchtower.Core
	Verifier verifier.Verifier
	Signer   signer.Signer

	Network             string
	StackflowMessageVer string
}

// Request is the co-signing payload (spec.md §4.6 step 1), already
// coerced to strict types by the HTTP layer.
type Request struct {
	ContractID     string
	ForPrincipal   string // must equal the configured co-signer principal
	WithPrincipal  string
	Token          string
	Amount         *uint256.Int
	MyBalance      *uint256.Int
	TheirBalance   *uint256.Int
	TheirSignature string
	Nonce          *uint256.Int
	Action         model.Action
	Actor          string
	Secret         string
	ValidAfter     *uint256.Int
	BeneficialOnly bool
}

// Response is returned on success (spec.md §4.6 step 7).
type Response struct {
	Request     Request
	MySignature string
	Upsert      watchtower.UpsertOutcome
}

// Baseline is the best-known current (balance, nonce) for a pipe (spec.md
// §4.6 step 2, GLOSSARY).
type Baseline struct {
	Source       string // "onchain" or "offchain"
	Nonce        *uint256.Int
	MyBalance    *uint256.Int
	TheirBalance *uint256.Int
	UpdatedAt    time.Time
}

// allowedActionsTransfer / allowedActionsSignatureRequest gate the two
// endpoints (spec.md §4.6 step 1: "enforce action in allowedSet for the
// endpoint").
var allowedActionsTransfer = map[model.Action]struct{}{model.ActionTransfer: {}}
var allowedActionsSignatureRequest = map[model.Action]struct{}{
	model.ActionClose:    {},
	model.ActionDeposit:  {},
	model.ActionWithdraw: {},
}

// SignTransfer handles POST /counterparty/transfer (spec.md §4.6).
func (s *Service) SignTransfer(ctx context.Context, req Request, myPrincipal string) (Response, error) {
	return s.sign(ctx, req, myPrincipal, allowedActionsTransfer)
}

// SignSignatureRequest handles POST /counterparty/signature-request
// (close/deposit/withdraw, spec.md §4.6).
func (s *Service) SignSignatureRequest(ctx context.Context, req Request, myPrincipal string) (Response, error) {
	return s.sign(ctx, req, myPrincipal, allowedActionsSignatureRequest)
}

func (s *Service) sign(ctx context.Context, req Request, myPrincipal string, allowed map[model.Action]struct{}) (Response, error) {
	if err := s.parse(&req, myPrincipal, allowed); err != nil {
		return Response{}, err
	}

	key, err := model.Canonicalize(req.ForPrincipal, req.WithPrincipal, req.Token)
	if err != nil {
		return Response{}, apperr.Validation(err.Error())
	}
	pipeID := key.PipeID()

	baseline, err := s.resolveBaseline(ctx, req.ContractID, pipeID, req.ForPrincipal)
	if err != nil {
		return Response{}, err
	}
	if baseline == nil {
		return Response{}, apperr.Policy(409, "unknown-pipe-state", "no baseline known for this pipe")
	}

	if err := enforcePolicy(req, *baseline); err != nil {
		return Response{}, err
	}

	hashedSecret := structdata.HashSecret(secretBytes(req.Secret))
	if err := s.verifyCounterparty(ctx, req, key, hashedSecret); err != nil {
		return Response{}, err
	}

	mySig, err := s.produceSignature(ctx, req, key, hashedSecret)
	if err != nil {
		return Response{}, err
	}

	outcome, err := s.Core.UpsertSignatureState(ctx, watchtower.UpsertInput{
		ContractID:     req.ContractID,
		ForPrincipal:   req.ForPrincipal,
		WithPrincipal:  req.WithPrincipal,
		Token:          req.Token,
		Amount:         req.Amount,
		MyBalance:      req.MyBalance,
		TheirBalance:   req.TheirBalance,
		MySignature:    mySig,
		TheirSignature: req.TheirSignature,
		Nonce:          req.Nonce,
		Action:         req.Action,
		Actor:          req.Actor,
		Secret:         req.Secret,
		ValidAfter:     req.ValidAfter,
		BeneficialOnly: req.BeneficialOnly,
	}, watchtower.UpsertOptions{SkipVerification: true})
	if err != nil {
		return Response{}, err
	}

	return Response{Request: req, MySignature: mySig, Upsert: outcome}, nil
}

// parse implements spec.md §4.6 step 1.
func (s *Service) parse(req *Request, myPrincipal string, allowed map[model.Action]struct{}) error {
	if req.ForPrincipal == "" {
		req.ForPrincipal = myPrincipal
	}
	if req.ForPrincipal != myPrincipal {
		return apperr.Validation("forPrincipal must equal the configured co-signer principal")
	}
	if _, ok := allowed[req.Action]; !ok {
		return apperr.Validation("action not allowed for this endpoint")
	}
	if req.WithPrincipal == "" {
		return apperr.Validation("withPrincipal is required")
	}
	if req.Nonce == nil || req.MyBalance == nil || req.TheirBalance == nil {
		return apperr.Validation("nonce, myBalance, theirBalance are required")
	}
	return nil
}

func secretBytes(secretHex string) []byte {
	if secretHex == "" {
		return nil
	}
	raw, err := hex.DecodeString(trimHexPrefix(secretHex))
	if err != nil {
		return nil
	}
	return raw
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
