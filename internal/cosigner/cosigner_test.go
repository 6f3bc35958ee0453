package cosigner

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/chainevent"
	"github.com/stackflow/watchtower/internal/dispute"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/signer"
	"github.com/stackflow/watchtower/internal/store"
	"github.com/stackflow/watchtower/internal/verifier"
	"github.com/stackflow/watchtower/internal/watchtower"
)

const (
	testContract = "SP000000000000000000002Q6VF78.pipe"
	testMe       = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQVX8X0G"
	testThem     = "SP3FBR2AGK5H9QBDH3EK2FEBD3FH7KD2GBV35MBN9"
)

func newTestService(t *testing.T, v verifier.Verifier) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 100)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	core := watchtower.New(st, &chainevent.Parser{}, verifier.AcceptAll{}, &dispute.Mock{}, nil, false, slog.Default())

	signerImpl, err := signer.NewLocalSigner(testMe, "0101010101010101010101010101010101010101010101010101010101010101")
	if err != nil {
		t.Fatalf("new local signer: %v", err)
	}

	return &Service{
		Core:                core,
		Verifier:            v,
		Signer:              signerImpl,
		Network:             "testnet",
		StackflowMessageVer: "1",
	}, st
}

func seedObservedPipe(t *testing.T, st *store.Store, nonce uint64) model.PipeKey {
	t.Helper()
	key, err := model.Canonicalize(testMe, testThem, "")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	rec := model.ObservedPipeRecord{
		StateID:    model.ObservedStateID(testContract, key.PipeID()),
		ContractID: testContract,
		Key:        key,
		Snapshot: model.PipeSnapshot{
			Balance1: uint256.NewInt(600),
			Balance2: uint256.NewInt(400),
			Nonce:    uint256.NewInt(nonce),
		},
		EventName: "create-pipe",
		UpdatedAt: time.Now().UTC(),
	}
	if err := st.UpsertObservedPipe(context.Background(), rec); err != nil {
		t.Fatalf("seed observed pipe: %v", err)
	}
	return key
}

func TestSignTransferRejectsWrongForPrincipal(t *testing.T) {
	svc, _ := newTestService(t, verifier.AcceptAll{})
	_, err := svc.SignTransfer(context.Background(), Request{
		ForPrincipal:  testThem,
		WithPrincipal: testMe,
		Action:        model.ActionTransfer,
		Nonce:         uint256.NewInt(1),
		MyBalance:     uint256.NewInt(1),
		TheirBalance:  uint256.NewInt(1),
	}, testMe)
	if err == nil {
		t.Fatalf("expected error for mismatched forPrincipal")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Status != 400 {
		t.Fatalf("expected a 400 validation error, got %v", err)
	}
}

func TestSignTransferRejectsDisallowedAction(t *testing.T) {
	svc, _ := newTestService(t, verifier.AcceptAll{})
	_, err := svc.SignTransfer(context.Background(), Request{
		ForPrincipal:  testMe,
		WithPrincipal: testThem,
		Action:        model.ActionClose,
		Nonce:         uint256.NewInt(1),
		MyBalance:     uint256.NewInt(1),
		TheirBalance:  uint256.NewInt(1),
	}, testMe)
	if err == nil {
		t.Fatalf("expected error for close action on the transfer endpoint")
	}
}

func TestSignTransferFailsWithoutBaseline(t *testing.T) {
	svc, _ := newTestService(t, verifier.AcceptAll{})
	_, err := svc.SignTransfer(context.Background(), Request{
		ForPrincipal:   testMe,
		WithPrincipal:  testThem,
		Action:         model.ActionTransfer,
		Nonce:          uint256.NewInt(1),
		MyBalance:      uint256.NewInt(601),
		TheirBalance:   uint256.NewInt(399),
		TheirSignature: "aa",
	}, testMe)
	if err == nil {
		t.Fatalf("expected unknown-pipe-state error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Reason != "unknown-pipe-state" {
		t.Fatalf("expected unknown-pipe-state, got %v", err)
	}
}

func TestSignTransferRejectsBalanceDecrease(t *testing.T) {
	svc, st := newTestService(t, verifier.AcceptAll{})
	seedObservedPipe(t, st, 5)

	_, err := svc.SignTransfer(context.Background(), Request{
		ContractID:     testContract,
		ForPrincipal:   testMe,
		WithPrincipal:  testThem,
		Action:         model.ActionTransfer,
		Nonce:          uint256.NewInt(6),
		MyBalance:      uint256.NewInt(500), // decreases our balance from 600
		TheirBalance:   uint256.NewInt(500),
		TheirSignature: "aa",
	}, testMe)
	if err == nil {
		t.Fatalf("expected balance-decrease-not-allowed error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Reason != "balance-decrease-not-allowed" {
		t.Fatalf("expected balance-decrease-not-allowed, got %v", err)
	}
}

func TestSignTransferRejectsInvalidTransferTotal(t *testing.T) {
	svc, st := newTestService(t, verifier.AcceptAll{})
	seedObservedPipe(t, st, 5)

	_, err := svc.SignTransfer(context.Background(), Request{
		ContractID:     testContract,
		ForPrincipal:   testMe,
		WithPrincipal:  testThem,
		Action:         model.ActionTransfer,
		Nonce:          uint256.NewInt(6),
		MyBalance:      uint256.NewInt(650),
		TheirBalance:   uint256.NewInt(400), // total no longer 1000
		TheirSignature: "aa",
	}, testMe)
	ae, ok := apperr.As(err)
	if !ok || ae.Reason != "invalid-transfer-total" {
		t.Fatalf("expected invalid-transfer-total, got %v", err)
	}
}

func TestSignTransferRejectsInvalidCounterpartySignature(t *testing.T) {
	svc, st := newTestService(t, verifier.RejectAll{})
	seedObservedPipe(t, st, 5)

	_, err := svc.SignTransfer(context.Background(), Request{
		ContractID:     testContract,
		ForPrincipal:   testMe,
		WithPrincipal:  testThem,
		Action:         model.ActionTransfer,
		Nonce:          uint256.NewInt(6),
		MyBalance:      uint256.NewInt(650),
		TheirBalance:   uint256.NewInt(350),
		TheirSignature: "aa",
	}, testMe)
	ae, ok := apperr.As(err)
	if !ok || ae.Status != 401 {
		t.Fatalf("expected a 401 signature error, got %v", err)
	}
}

func TestSignTransferSucceedsAndPersists(t *testing.T) {
	svc, st := newTestService(t, verifier.AcceptAll{})
	seedObservedPipe(t, st, 5)

	resp, err := svc.SignTransfer(context.Background(), Request{
		ContractID:     testContract,
		ForPrincipal:   testMe,
		WithPrincipal:  testThem,
		Action:         model.ActionTransfer,
		Nonce:          uint256.NewInt(6),
		MyBalance:      uint256.NewInt(650),
		TheirBalance:   uint256.NewInt(350),
		TheirSignature: strings.Repeat("bb", 65),
	}, testMe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.MySignature == "" {
		t.Fatalf("expected a non-empty signature")
	}
	if !resp.Upsert.Stored {
		t.Fatalf("expected the signature state to be stored")
	}

	key, _ := model.Canonicalize(testMe, testThem, "")
	stateID := model.SignatureStateID(testContract, key.PipeID(), testMe)
	rec, err := st.GetSignatureState(context.Background(), stateID)
	if err != nil {
		t.Fatalf("get signature state: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a persisted signature state")
	}
	if rec.MySignature != resp.MySignature {
		t.Fatalf("expected persisted signature to match returned signature")
	}
}
