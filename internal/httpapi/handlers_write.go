package httpapi

import (
	"context"
	"net/http"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/cosigner"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/watchtower"
)

// signatureStateRequest is the wire shape POST /signature-states and the
// /counterparty/* endpoints accept (spec.md §4.5.4/§4.6): uint128 fields
// travel as decimal strings.
type signatureStateRequest struct {
	ContractID     string `json:"contractId"`
	ForPrincipal   string `json:"forPrincipal"`
	WithPrincipal  string `json:"withPrincipal"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
	MyBalance      string `json:"myBalance"`
	TheirBalance   string `json:"theirBalance"`
	MySignature    string `json:"mySignature"`
	TheirSignature string `json:"theirSignature"`
	Nonce          string `json:"nonce"`
	Action         string `json:"action"`
	Actor          string `json:"actor"`
	Secret         string `json:"secret"`
	ValidAfter     string `json:"validAfter"`
	BeneficialOnly bool   `json:"beneficialOnly"`
}

func parseAction(s string) (model.Action, error) {
	switch s {
	case "close":
		return model.ActionClose, nil
	case "transfer":
		return model.ActionTransfer, nil
	case "deposit":
		return model.ActionDeposit, nil
	case "withdraw":
		return model.ActionWithdraw, nil
	default:
		return 0, apperr.Validation("unrecognized action: " + s)
	}
}

func parseSignatureStateRequest(body []byte) (signatureStateRequest, error) {
	var req signatureStateRequest
	if err := decodeJSON(body, &req); err != nil {
		return signatureStateRequest{}, err
	}
	return req, nil
}

func toUpsertInput(req signatureStateRequest) (watchtower.UpsertInput, error) {
	action, err := parseAction(req.Action)
	if err != nil {
		return watchtower.UpsertInput{}, err
	}
	amount, err := parseUint(req.Amount)
	if err != nil {
		return watchtower.UpsertInput{}, err
	}
	myBalance, err := parseUint(req.MyBalance)
	if err != nil {
		return watchtower.UpsertInput{}, err
	}
	theirBalance, err := parseUint(req.TheirBalance)
	if err != nil {
		return watchtower.UpsertInput{}, err
	}
	nonce, err := parseUint(req.Nonce)
	if err != nil {
		return watchtower.UpsertInput{}, err
	}
	validAfter, err := parseUint(req.ValidAfter)
	if err != nil {
		return watchtower.UpsertInput{}, err
	}
	return watchtower.UpsertInput{
		ContractID:     req.ContractID,
		ForPrincipal:   req.ForPrincipal,
		WithPrincipal:  req.WithPrincipal,
		Token:          req.Token,
		Amount:         amount,
		MyBalance:      myBalance,
		TheirBalance:   theirBalance,
		MySignature:    req.MySignature,
		TheirSignature: req.TheirSignature,
		Nonce:          nonce,
		Action:         action,
		Actor:          req.Actor,
		Secret:         req.Secret,
		ValidAfter:     validAfter,
		BeneficialOnly: req.BeneficialOnly,
	}, nil
}

func toCosignerRequest(req signatureStateRequest) (cosigner.Request, error) {
	action, err := parseAction(req.Action)
	if err != nil {
		return cosigner.Request{}, err
	}
	myBalance, err := parseUint(req.MyBalance)
	if err != nil {
		return cosigner.Request{}, err
	}
	theirBalance, err := parseUint(req.TheirBalance)
	if err != nil {
		return cosigner.Request{}, err
	}
	amount, err := parseUint(req.Amount)
	if err != nil {
		return cosigner.Request{}, err
	}
	nonce, err := parseUint(req.Nonce)
	if err != nil {
		return cosigner.Request{}, err
	}
	validAfter, err := parseUint(req.ValidAfter)
	if err != nil {
		return cosigner.Request{}, err
	}
	return cosigner.Request{
		ContractID:     req.ContractID,
		ForPrincipal:   req.ForPrincipal,
		WithPrincipal:  req.WithPrincipal,
		Token:          req.Token,
		Amount:         amount,
		MyBalance:      myBalance,
		TheirBalance:   theirBalance,
		TheirSignature: req.TheirSignature,
		Nonce:          nonce,
		Action:         action,
		Actor:          req.Actor,
		Secret:         req.Secret,
		ValidAfter:     validAfter,
		BeneficialOnly: req.BeneficialOnly,
	}, nil
}

// handleUpsertSignatureState implements POST /signature-states (spec.md §4.5.4).
func (s *Server) handleUpsertSignatureState(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid-input", err.Error())
		return
	}
	req, err := parseSignatureStateRequest(body)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	in, err := toUpsertInput(req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	outcome, err := s.core.UpsertSignatureState(r.Context(), in, watchtower.UpsertOptions{})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"stored":   outcome.Stored,
		"replaced": outcome.Replaced,
		"reason":   outcome.Reason,
		"state":    renderSignatureState(outcome.State),
	})
}

func (s *Server) handleCounterpartyTransfer(w http.ResponseWriter, r *http.Request) {
	s.handleCounterparty(w, r, s.cosigner.SignTransfer)
}

func (s *Server) handleCounterpartySignatureRequest(w http.ResponseWriter, r *http.Request) {
	s.handleCounterparty(w, r, s.cosigner.SignSignatureRequest)
}

type cosignFunc func(ctx context.Context, req cosigner.Request, myPrincipal string) (cosigner.Response, error)

func (s *Server) handleCounterparty(w http.ResponseWriter, r *http.Request, sign cosignFunc) {
	if s.cosigner == nil {
		writeError(w, r, http.StatusServiceUnavailable, "co-signer-unavailable", "co-signer not configured")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid-input", err.Error())
		return
	}
	req, err := parseSignatureStateRequest(body)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	csReq, err := toCosignerRequest(req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	resp, err := sign(r.Context(), csReq, s.cosignerPrincipal)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"mySignature": resp.MySignature,
		"stored":      resp.Upsert.Stored,
		"state":       renderSignatureState(resp.Upsert.State),
	})
}
