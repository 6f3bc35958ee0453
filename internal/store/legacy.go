package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/stackflow/watchtower/internal/apperr"
)

// legacySnapshot mirrors a pre-SQL JSON dump: closures/observedPipes/
// signatureStates/disputeAttempts keyed exactly like the SQL tables
// (spec.md §4.2: "if the data file begins with { it is interpreted as a
// legacy JSON snapshot and imported in a single transaction").
type legacySnapshot struct {
	Closures        map[string]json.RawMessage `json:"closures"`
	ObservedPipes   map[string]json.RawMessage `json:"observedPipes"`
	SignatureStates map[string]json.RawMessage `json:"signatureStates"`
	DisputeAttempts map[string]json.RawMessage `json:"disputeAttempts"`
}

// detectLegacyJSON peeks at the first non-whitespace byte of path. If it
// is '{', the file is parsed as a legacySnapshot and returned; if the file
// doesn't exist or isn't JSON, (nil, nil) is returned so the caller treats
// it as a fresh SQLite database.
func detectLegacyJSON(path string) (*legacySnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	trimmed := firstNonSpace(raw)
	if trimmed != '{' {
		return nil, nil
	}
	var snap legacySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse legacy snapshot: %w", err)
	}
	return &snap, nil
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

// backupLegacyFile renames the legacy JSON file out of the way before the
// SQL database is created in its place (spec.md §4.2: "the file is renamed
// to a timestamped backup before the SQL database is created").
func backupLegacyFile(path string) error {
	backup := fmt.Sprintf("%s.legacy-%s.bak", path, time.Now().UTC().Format("20060102T150405"))
	return os.Rename(path, backup)
}

// importLegacy loads a legacySnapshot into the freshly migrated SQL schema
// in one transaction.
func (s *Store) importLegacy(ctx context.Context, snap *legacySnapshot) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, raw := range snap.Closures {
			var rec legacyClosure
			if err := json.Unmarshal(raw, &rec); err != nil {
				return apperr.StateStore("decode legacy closure", err)
			}
			if err := importClosureRow(ctx, tx, rec); err != nil {
				return err
			}
		}
		for _, raw := range snap.ObservedPipes {
			var rec legacyObservedPipe
			if err := json.Unmarshal(raw, &rec); err != nil {
				return apperr.StateStore("decode legacy observed pipe", err)
			}
			if err := importObservedPipeRow(ctx, tx, rec); err != nil {
				return err
			}
		}
		for _, raw := range snap.SignatureStates {
			var rec legacySignatureState
			if err := json.Unmarshal(raw, &rec); err != nil {
				return apperr.StateStore("decode legacy signature state", err)
			}
			if err := importSignatureStateRow(ctx, tx, rec); err != nil {
				return err
			}
		}
		for _, raw := range snap.DisputeAttempts {
			var rec legacyDisputeAttempt
			if err := json.Unmarshal(raw, &rec); err != nil {
				return apperr.StateStore("decode legacy dispute attempt", err)
			}
			if err := importDisputeAttemptRow(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

type legacyClosure struct {
	PipeID      string `json:"pipeId"`
	ContractID  string `json:"contractId"`
	Token       string `json:"token"`
	Principal1  string `json:"principal1"`
	Principal2  string `json:"principal2"`
	Closer      string `json:"closer"`
	ExpiresAt   string `json:"expiresAt"`
	Nonce       string `json:"nonce"`
	EventName   string `json:"eventName"`
	TriggerTxid string `json:"triggerTxid"`
	BlockHeight uint64 `json:"blockHeight"`
	UpdatedAt   string `json:"updatedAt"`
}

func importClosureRow(ctx context.Context, tx *sql.Tx, r legacyClosure) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO closures
		(pipe_id, contract_id, token, principal_1, principal_2, closer, expires_at, nonce, event_name, trigger_txid, block_height, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.PipeID, r.ContractID, r.Token, r.Principal1, r.Principal2, r.Closer, nullIfEmpty(r.ExpiresAt),
		orZero(r.Nonce), r.EventName, r.TriggerTxid, r.BlockHeight, orNow(r.UpdatedAt))
	if err != nil {
		return apperr.StateStore("import legacy closure", err)
	}
	return nil
}

type legacyObservedPipe struct {
	StateID     string `json:"stateId"`
	ContractID  string `json:"contractId"`
	Token       string `json:"token"`
	Principal1  string `json:"principal1"`
	Principal2  string `json:"principal2"`
	Balance1    string `json:"balance1"`
	Balance2    string `json:"balance2"`
	ExpiresAt   string `json:"expiresAt"`
	Nonce       string `json:"nonce"`
	Closer      string `json:"closer"`
	EventName   string `json:"eventName"`
	Txid        string `json:"txid"`
	BlockHeight uint64 `json:"blockHeight"`
	UpdatedAt   string `json:"updatedAt"`
}

func importObservedPipeRow(ctx context.Context, tx *sql.Tx, r legacyObservedPipe) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO observed_pipes
		(state_id, contract_id, token, principal_1, principal_2, balance_1, balance_2,
		 expires_at, nonce, closer, event_name, txid, block_height, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.StateID, r.ContractID, r.Token, r.Principal1, r.Principal2, orZero(r.Balance1), orZero(r.Balance2),
		nullIfEmpty(r.ExpiresAt), orZero(r.Nonce), r.Closer, r.EventName, r.Txid, r.BlockHeight, orNow(r.UpdatedAt))
	if err != nil {
		return apperr.StateStore("import legacy observed pipe", err)
	}
	return nil
}

type legacySignatureState struct {
	StateID        string `json:"stateId"`
	ContractID     string `json:"contractId"`
	PipeID         string `json:"pipeId"`
	ForPrincipal   string `json:"forPrincipal"`
	WithPrincipal  string `json:"withPrincipal"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
	MyBalance      string `json:"myBalance"`
	TheirBalance   string `json:"theirBalance"`
	MySignature    string `json:"mySignature"`
	TheirSignature string `json:"theirSignature"`
	Nonce          string `json:"nonce"`
	Action         int    `json:"action"`
	Actor          string `json:"actor"`
	Secret         string `json:"secret"`
	ValidAfter     string `json:"validAfter"`
	BeneficialOnly bool   `json:"beneficialOnly"`
	UpdatedAt      string `json:"updatedAt"`
}

func importSignatureStateRow(ctx context.Context, tx *sql.Tx, r legacySignatureState) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO signature_states
		(state_id, contract_id, pipe_id, for_principal, with_principal, token, amount,
		 my_balance, their_balance, my_signature, their_signature, nonce, action, actor,
		 secret, valid_after, beneficial_only, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.StateID, r.ContractID, r.PipeID, r.ForPrincipal, r.WithPrincipal, r.Token, orZero(r.Amount),
		orZero(r.MyBalance), orZero(r.TheirBalance), r.MySignature, r.TheirSignature, orZero(r.Nonce),
		r.Action, r.Actor, r.Secret, nullIfEmpty(r.ValidAfter), boolToInt(r.BeneficialOnly), orNow(r.UpdatedAt))
	if err != nil {
		return apperr.StateStore("import legacy signature state", err)
	}
	return nil
}

type legacyDisputeAttempt struct {
	AttemptID    string `json:"attemptId"`
	ContractID   string `json:"contractId"`
	PipeID       string `json:"pipeId"`
	ForPrincipal string `json:"forPrincipal"`
	TriggerTxid  string `json:"triggerTxid"`
	Success      bool   `json:"success"`
	DisputeTxid  string `json:"disputeTxid"`
	Error        string `json:"error"`
	CreatedAt    string `json:"createdAt"`
}

func importDisputeAttemptRow(ctx context.Context, tx *sql.Tx, r legacyDisputeAttempt) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO dispute_attempts
		(attempt_id, contract_id, pipe_id, for_principal, trigger_txid, success, dispute_txid, error, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		r.AttemptID, r.ContractID, r.PipeID, r.ForPrincipal, r.TriggerTxid, boolToInt(r.Success),
		r.DisputeTxid, r.Error, orNow(r.CreatedAt))
	if err != nil {
		return apperr.StateStore("import legacy dispute attempt", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func orNow(s string) string {
	if s == "" {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return s
}
