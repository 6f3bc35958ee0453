package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
)

// UpsertObservedPipe persists rec keyed by rec.StateID (spec.md §4.5.1).
func (s *Store) UpsertObservedPipe(ctx context.Context, rec model.ObservedPipeRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO observed_pipes
			(state_id, contract_id, token, principal_1, principal_2, balance_1, balance_2,
			 pending_1_amount, pending_1_height, pending_2_amount, pending_2_height,
			 expires_at, nonce, closer, event_name, txid, block_height, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(state_id) DO UPDATE SET
				balance_1=excluded.balance_1, balance_2=excluded.balance_2,
				pending_1_amount=excluded.pending_1_amount, pending_1_height=excluded.pending_1_height,
				pending_2_amount=excluded.pending_2_amount, pending_2_height=excluded.pending_2_height,
				expires_at=excluded.expires_at, nonce=excluded.nonce, closer=excluded.closer,
				event_name=excluded.event_name, txid=excluded.txid, block_height=excluded.block_height,
				updated_at=excluded.updated_at`,
			rec.StateID, rec.ContractID, rec.Key.Token, rec.Key.Principal1, rec.Key.Principal2,
			rec.Snapshot.Balance1.String(), rec.Snapshot.Balance2.String(),
			pendingAmount(rec.Snapshot.Pending1), pendingHeight(rec.Snapshot.Pending1),
			pendingAmount(rec.Snapshot.Pending2), pendingHeight(rec.Snapshot.Pending2),
			nullableUint(rec.Snapshot.ExpiresAt), rec.Snapshot.Nonce.String(), rec.Snapshot.Closer,
			rec.EventName, rec.Txid, rec.BlockHeight, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return apperr.StateStore("upsert observed pipe", err)
		}
		return nil
	})
}

// DeleteObservedPipe removes the observed-pipe row for stateID.
func (s *Store) DeleteObservedPipe(ctx context.Context, stateID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM observed_pipes WHERE state_id = ?`, stateID)
		if err != nil {
			return apperr.StateStore("delete observed pipe", err)
		}
		return nil
	})
}

func pendingAmount(p *model.PendingDeposit) interface{} {
	if p == nil {
		return nil
	}
	return p.Amount.String()
}

func pendingHeight(p *model.PendingDeposit) interface{} {
	if p == nil {
		return nil
	}
	return p.BurnHeight
}

const observedPipeSelect = `SELECT state_id, contract_id, token, principal_1, principal_2, balance_1, balance_2,
	pending_1_amount, pending_1_height, pending_2_amount, pending_2_height,
	expires_at, nonce, closer, event_name, txid, block_height, updated_at FROM observed_pipes`

// GetObservedPipe looks up a record by stateID, nil if absent.
func (s *Store) GetObservedPipe(ctx context.Context, stateID string) (*model.ObservedPipeRecord, error) {
	row := s.db.QueryRowContext(ctx, observedPipeSelect+` WHERE state_id = ?`, stateID)
	rec, err := scanObservedPipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StateStore("get observed pipe", err)
	}
	return rec, nil
}

// GetObservedPipeByPipeID looks up the observed-pipe row for (contractID,
// pipeID), nil if absent. Used by the co-signer baseline scan (spec.md §4.6).
func (s *Store) GetObservedPipeByPipeID(ctx context.Context, contractID, pipeID string) (*model.ObservedPipeRecord, error) {
	return s.GetObservedPipe(ctx, model.ObservedStateID(contractID, pipeID))
}

// ListObservedPipes returns every observed-pipe row, optionally filtered to
// those involving principal (spec.md §6 GET /pipes?principal=).
func (s *Store) ListObservedPipes(ctx context.Context, principal string) ([]model.ObservedPipeRecord, error) {
	query := observedPipeSelect
	var args []interface{}
	if principal != "" {
		query += ` WHERE principal_1 = ? OR principal_2 = ?`
		args = append(args, principal, principal)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StateStore("list observed pipes", err)
	}
	defer rows.Close()
	var out []model.ObservedPipeRecord
	for rows.Next() {
		rec, err := scanObservedPipeRows(rows)
		if err != nil {
			return nil, apperr.StateStore("scan observed pipe", err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func scanObservedPipe(row *sql.Row) (*model.ObservedPipeRecord, error) { return scanObservedAny(row) }
func scanObservedPipeRows(rows *sql.Rows) (*model.ObservedPipeRecord, error) {
	return scanObservedAny(rows)
}

func scanObservedAny(s scanner) (*model.ObservedPipeRecord, error) {
	var rec model.ObservedPipeRecord
	var token, p1, p2, balance1, balance2, expiresAt, nonce, closer, updatedAt string
	var pending1Amount, pending2Amount sql.NullString
	var pending1Height, pending2Height sql.NullInt64
	var blockHeight int64
	if err := s.Scan(&rec.StateID, &rec.ContractID, &token, &p1, &p2, &balance1, &balance2,
		&pending1Amount, &pending1Height, &pending2Amount, &pending2Height,
		&nullString{&expiresAt}, &nonce, &closer, &rec.EventName, &rec.Txid, &blockHeight, &updatedAt); err != nil {
		return nil, err
	}
	rec.Key = model.PipeKey{Token: token, Principal1: p1, Principal2: p2}
	rec.Snapshot.Balance1, _ = uint256.FromDecimal(balance1)
	rec.Snapshot.Balance2, _ = uint256.FromDecimal(balance2)
	rec.Snapshot.Nonce, _ = uint256.FromDecimal(nonce)
	rec.Snapshot.Closer = closer
	if expiresAt != "" {
		rec.Snapshot.ExpiresAt, _ = uint256.FromDecimal(expiresAt)
	}
	if pending1Amount.Valid {
		amt, _ := uint256.FromDecimal(pending1Amount.String)
		h := uint64(0)
		if pending1Height.Valid {
			h = uint64(pending1Height.Int64)
		}
		rec.Snapshot.Pending1 = &model.PendingDeposit{Amount: amt, BurnHeight: h}
	}
	if pending2Amount.Valid {
		amt, _ := uint256.FromDecimal(pending2Amount.String)
		h := uint64(0)
		if pending2Height.Valid {
			h = uint64(pending2Height.Int64)
		}
		rec.Snapshot.Pending2 = &model.PendingDeposit{Amount: amt, BurnHeight: h}
	}
	rec.BlockHeight = uint64(blockHeight)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}
