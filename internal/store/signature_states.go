package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
)

const signatureStateSelect = `SELECT state_id, contract_id, pipe_id, for_principal, with_principal, token,
	amount, my_balance, their_balance, my_signature, their_signature, nonce, action, actor,
	secret, valid_after, beneficial_only, updated_at FROM signature_states`

// GetSignatureState looks up a record by stateID, nil if absent.
func (s *Store) GetSignatureState(ctx context.Context, stateID string) (*model.SignatureStateRecord, error) {
	row := s.db.QueryRowContext(ctx, signatureStateSelect+` WHERE state_id = ?`, stateID)
	rec, err := scanSignatureState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StateStore("get signature state", err)
	}
	return rec, nil
}

// UpsertSignatureState persists rec keyed by rec.StateID, replacing any
// existing row (the caller -- watchtower core -- has already enforced the
// nonce-monotone rule from spec.md §4.5.4 before calling this).
func (s *Store) UpsertSignatureState(ctx context.Context, rec model.SignatureStateRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO signature_states
			(state_id, contract_id, pipe_id, for_principal, with_principal, token, amount,
			 my_balance, their_balance, my_signature, their_signature, nonce, action, actor,
			 secret, valid_after, beneficial_only, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(state_id) DO UPDATE SET
				amount=excluded.amount, my_balance=excluded.my_balance, their_balance=excluded.their_balance,
				my_signature=excluded.my_signature, their_signature=excluded.their_signature,
				nonce=excluded.nonce, action=excluded.action, actor=excluded.actor, secret=excluded.secret,
				valid_after=excluded.valid_after, beneficial_only=excluded.beneficial_only,
				updated_at=excluded.updated_at`,
			rec.StateID, rec.ContractID, rec.PipeID, rec.ForPrincipal, rec.WithPrincipal, rec.Token,
			rec.Amount.String(), rec.MyBalance.String(), rec.TheirBalance.String(),
			rec.MySignature, rec.TheirSignature, rec.Nonce.String(), int(rec.Action), rec.Actor,
			rec.Secret, nullableUint(rec.ValidAfter), boolToInt(rec.BeneficialOnly),
			time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return apperr.StateStore("upsert signature state", err)
		}
		return nil
	})
}

// ListSignatureStatesByPipe returns every signature-state row for
// (contractID, pipeID) -- used by closure response (spec.md §4.5.3).
func (s *Store) ListSignatureStatesByPipe(ctx context.Context, contractID, pipeID string) ([]model.SignatureStateRecord, error) {
	rows, err := s.db.QueryContext(ctx, signatureStateSelect+` WHERE contract_id = ? AND pipe_id = ?`, contractID, pipeID)
	if err != nil {
		return nil, apperr.StateStore("list signature states by pipe", err)
	}
	defer rows.Close()
	return scanSignatureStateRows(rows)
}

// ListSignatureStates returns up to limit signature-state rows, newest-updated first.
func (s *Store) ListSignatureStates(ctx context.Context, limit int) ([]model.SignatureStateRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, signatureStateSelect+` ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.StateStore("list signature states", err)
	}
	defer rows.Close()
	return scanSignatureStateRows(rows)
}

func scanSignatureStateRows(rows *sql.Rows) ([]model.SignatureStateRecord, error) {
	var out []model.SignatureStateRecord
	for rows.Next() {
		rec, err := scanSignatureState(rows)
		if err != nil {
			return nil, apperr.StateStore("scan signature state", err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func scanSignatureState(s scanner) (*model.SignatureStateRecord, error) {
	var rec model.SignatureStateRecord
	var amount, myBalance, theirBalance, nonce, validAfter string
	var action int
	var beneficial int
	var updatedAt string
	if err := s.Scan(&rec.StateID, &rec.ContractID, &rec.PipeID, &rec.ForPrincipal, &rec.WithPrincipal,
		&rec.Token, &amount, &myBalance, &theirBalance, &rec.MySignature, &rec.TheirSignature,
		&nonce, &action, &rec.Actor, &rec.Secret, &nullString{&validAfter}, &beneficial, &updatedAt); err != nil {
		return nil, err
	}
	rec.Amount, _ = uint256.FromDecimal(amount)
	rec.MyBalance, _ = uint256.FromDecimal(myBalance)
	rec.TheirBalance, _ = uint256.FromDecimal(theirBalance)
	rec.Nonce, _ = uint256.FromDecimal(nonce)
	rec.Action = model.Action(action)
	rec.BeneficialOnly = beneficial != 0
	if validAfter != "" {
		rec.ValidAfter, _ = uint256.FromDecimal(validAfter)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
