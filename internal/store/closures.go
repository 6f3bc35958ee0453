package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
)

// UpsertClosure creates or replaces the closure row for c.PipeID (spec.md
// §4.5.1: "upsert closures recording the closer, expiresAt, nonce, event
// name, triggering txid/blockHeight").
func (s *Store) UpsertClosure(ctx context.Context, c model.ClosureRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO closures
			(pipe_id, contract_id, token, principal_1, principal_2, closer, expires_at, nonce, event_name, trigger_txid, block_height, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(pipe_id) DO UPDATE SET
				contract_id=excluded.contract_id, token=excluded.token,
				principal_1=excluded.principal_1, principal_2=excluded.principal_2,
				closer=excluded.closer, expires_at=excluded.expires_at, nonce=excluded.nonce,
				event_name=excluded.event_name, trigger_txid=excluded.trigger_txid,
				block_height=excluded.block_height, updated_at=excluded.updated_at`,
			c.PipeID, c.ContractID, c.Key.Token, c.Key.Principal1, c.Key.Principal2,
			c.Closer, nullableUint(c.ExpiresAt), c.Nonce.String(), c.EventName, c.TriggerTxid,
			c.BlockHeight, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return apperr.StateStore("upsert closure", err)
		}
		return nil
	})
}

// DeleteClosure removes the closure row for pipeID, if any (spec.md
// §4.5.1: terminating events delete the closure).
func (s *Store) DeleteClosure(ctx context.Context, pipeID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM closures WHERE pipe_id = ?`, pipeID)
		if err != nil {
			return apperr.StateStore("delete closure", err)
		}
		return nil
	})
}

// GetClosure looks up the closure for pipeID, nil if absent.
func (s *Store) GetClosure(ctx context.Context, pipeID string) (*model.ClosureRecord, error) {
	row := s.db.QueryRowContext(ctx, closureSelect+` WHERE pipe_id = ?`, pipeID)
	rec, err := scanClosure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StateStore("get closure", err)
	}
	return rec, nil
}

// ListClosures returns all active closures.
func (s *Store) ListClosures(ctx context.Context) ([]model.ClosureRecord, error) {
	rows, err := s.db.QueryContext(ctx, closureSelect)
	if err != nil {
		return nil, apperr.StateStore("list closures", err)
	}
	defer rows.Close()
	var out []model.ClosureRecord
	for rows.Next() {
		rec, err := scanClosureRows(rows)
		if err != nil {
			return nil, apperr.StateStore("scan closure", err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

const closureSelect = `SELECT pipe_id, contract_id, token, principal_1, principal_2, closer, expires_at, nonce, event_name, trigger_txid, block_height, updated_at FROM closures`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClosure(row *sql.Row) (*model.ClosureRecord, error)     { return scanClosureAny(row) }
func scanClosureRows(rows *sql.Rows) (*model.ClosureRecord, error) { return scanClosureAny(rows) }

func scanClosureAny(s scanner) (*model.ClosureRecord, error) {
	var rec model.ClosureRecord
	var token, p1, p2, expiresAt, nonce, updatedAt string
	var blockHeight int64
	if err := s.Scan(&rec.PipeID, &rec.ContractID, &token, &p1, &p2, &rec.Closer, &nullString{&expiresAt}, &nonce,
		&rec.EventName, &rec.TriggerTxid, &blockHeight, &updatedAt); err != nil {
		return nil, err
	}
	rec.Key = model.PipeKey{Token: token, Principal1: p1, Principal2: p2}
	rec.Nonce, _ = uint256.FromDecimal(nonce)
	if expiresAt != "" {
		rec.ExpiresAt, _ = uint256.FromDecimal(expiresAt)
	}
	rec.BlockHeight = uint64(blockHeight)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// nullString adapts a *string to sql.Scanner so NULL columns decode to "".
type nullString struct{ target *string }

func (n *nullString) Scan(value interface{}) error {
	if value == nil {
		*n.target = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*n.target = v
	case []byte:
		*n.target = string(v)
	}
	return nil
}

func nullableUint(n *uint256.Int) interface{} {
	if n == nil {
		return nil
	}
	return n.String()
}
