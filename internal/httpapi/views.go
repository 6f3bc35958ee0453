package httpapi

import (
	"time"

	"github.com/stackflow/watchtower/internal/model"
)

// The view types render model records as JSON with uint128 fields as
// decimal strings (spec.md §6: "structured data... byte-for-byte"; wire
// responses follow the same decimal-string convention the chain API uses
// for u128 values).

type closureView struct {
	PipeID      string `json:"pipeId"`
	ContractID  string `json:"contractId"`
	Token       string `json:"token"`
	Principal1  string `json:"principal1"`
	Principal2  string `json:"principal2"`
	Closer      string `json:"closer"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
	Nonce       string `json:"nonce"`
	EventName   string `json:"eventName"`
	TriggerTxid string `json:"triggerTxid,omitempty"`
	BlockHeight uint64 `json:"blockHeight"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func renderClosure(c model.ClosureRecord) closureView {
	return closureView{
		PipeID:      c.PipeID,
		ContractID:  c.ContractID,
		Token:       c.Key.Token,
		Principal1:  c.Key.Principal1,
		Principal2:  c.Key.Principal2,
		Closer:      c.Closer,
		ExpiresAt:   uintString(c.ExpiresAt),
		Nonce:       uintString(c.Nonce),
		EventName:   c.EventName,
		TriggerTxid: c.TriggerTxid,
		BlockHeight: c.BlockHeight,
		UpdatedAt:   c.UpdatedAt,
	}
}

type signatureStateView struct {
	StateID        string    `json:"stateId"`
	ContractID     string    `json:"contractId"`
	PipeID         string    `json:"pipeId"`
	ForPrincipal   string    `json:"forPrincipal"`
	WithPrincipal  string    `json:"withPrincipal"`
	Token          string    `json:"token"`
	Amount         string    `json:"amount,omitempty"`
	MyBalance      string    `json:"myBalance"`
	TheirBalance   string    `json:"theirBalance"`
	MySignature    string    `json:"mySignature"`
	TheirSignature string    `json:"theirSignature"`
	Nonce          string    `json:"nonce"`
	Action         string    `json:"action"`
	Actor          string    `json:"actor"`
	ValidAfter     string    `json:"validAfter,omitempty"`
	BeneficialOnly bool      `json:"beneficialOnly"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func renderSignatureState(s model.SignatureStateRecord) signatureStateView {
	return signatureStateView{
		StateID:        s.StateID,
		ContractID:     s.ContractID,
		PipeID:         s.PipeID,
		ForPrincipal:   s.ForPrincipal,
		WithPrincipal:  s.WithPrincipal,
		Token:          s.Token,
		Amount:         uintString(s.Amount),
		MyBalance:      uintString(s.MyBalance),
		TheirBalance:   uintString(s.TheirBalance),
		MySignature:    s.MySignature,
		TheirSignature: s.TheirSignature,
		Nonce:          uintString(s.Nonce),
		Action:         s.Action.String(),
		Actor:          s.Actor,
		ValidAfter:     uintString(s.ValidAfter),
		BeneficialOnly: s.BeneficialOnly,
		UpdatedAt:      s.UpdatedAt,
	}
}

type pipeView struct {
	PipeID       string    `json:"pipeId"`
	ContractID   string    `json:"contractId"`
	Token        string    `json:"token"`
	Principal1   string    `json:"principal1"`
	Principal2   string    `json:"principal2"`
	Source       string    `json:"source"` // "onchain" or "offchain"
	Nonce        string    `json:"nonce"`
	ForPrincipal string    `json:"forPrincipal,omitempty"`
	Balance1     string    `json:"balance1,omitempty"`
	Balance2     string    `json:"balance2,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type disputeAttemptView struct {
	AttemptID    string    `json:"attemptId"`
	ContractID   string    `json:"contractId"`
	PipeID       string    `json:"pipeId"`
	ForPrincipal string    `json:"forPrincipal"`
	TriggerTxid  string    `json:"triggerTxid,omitempty"`
	Success      bool      `json:"success"`
	DisputeTxid  string    `json:"disputeTxid,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func renderDisputeAttempt(d model.DisputeAttemptRecord) disputeAttemptView {
	return disputeAttemptView{
		AttemptID:    d.AttemptID,
		ContractID:   d.ContractID,
		PipeID:       d.PipeID,
		ForPrincipal: d.ForPrincipal,
		TriggerTxid:  d.TriggerTxid,
		Success:      d.Success,
		DisputeTxid:  d.DisputeTxid,
		Error:        d.Error,
		CreatedAt:    d.CreatedAt,
	}
}

type eventView struct {
	Seq         int64     `json:"seq"`
	ContractID  string    `json:"contractId"`
	Topic       string    `json:"topic"`
	Txid        string    `json:"txid,omitempty"`
	BlockHeight uint64    `json:"blockHeight"`
	EventName   string    `json:"eventName"`
	Sender      string    `json:"sender,omitempty"`
	Source      string    `json:"source"`
	ObservedAt  time.Time `json:"observedAt"`
}

func renderEvent(e model.RecordedEvent) eventView {
	return eventView{
		Seq:         e.Seq,
		ContractID:  e.ContractID,
		Topic:       e.Topic,
		Txid:        e.Txid,
		BlockHeight: e.BlockHeight,
		EventName:   e.EventName,
		Sender:      e.Sender,
		Source:      e.Source,
		ObservedAt:  e.ObservedAt,
	}
}
