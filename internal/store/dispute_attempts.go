package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
)

// GetDisputeAttempt looks up an attempt by attemptID, nil if absent --
// used for the idempotency check in spec.md §4.5.3 step 2.
func (s *Store) GetDisputeAttempt(ctx context.Context, attemptID string) (*model.DisputeAttemptRecord, error) {
	row := s.db.QueryRowContext(ctx, disputeAttemptSelect+` WHERE attempt_id = ?`, attemptID)
	rec, err := scanDisputeAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StateStore("get dispute attempt", err)
	}
	return rec, nil
}

// InsertDisputeAttempt records one outcome per trigger (spec.md §4.5.3
// step 5). Conflicts on attempt_id are dropped silently: the idempotency
// check in the caller should have already prevented a second insert, but a
// concurrent ingest racing to the same trigger must not error out the
// loser (spec.md §5: "either ordering is admissible").
func (s *Store) InsertDisputeAttempt(ctx context.Context, rec model.DisputeAttemptRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO dispute_attempts
			(attempt_id, contract_id, pipe_id, for_principal, trigger_txid, success, dispute_txid, error, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(attempt_id) DO NOTHING`,
			rec.AttemptID, rec.ContractID, rec.PipeID, rec.ForPrincipal, rec.TriggerTxid,
			boolToInt(rec.Success), rec.DisputeTxid, rec.Error, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return apperr.StateStore("insert dispute attempt", err)
		}
		return nil
	})
}

// ListDisputeAttempts returns up to limit attempts, newest first.
func (s *Store) ListDisputeAttempts(ctx context.Context, limit int) ([]model.DisputeAttemptRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, disputeAttemptSelect+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.StateStore("list dispute attempts", err)
	}
	defer rows.Close()
	var out []model.DisputeAttemptRecord
	for rows.Next() {
		rec, err := scanDisputeAttempt(rows)
		if err != nil {
			return nil, apperr.StateStore("scan dispute attempt", err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

const disputeAttemptSelect = `SELECT attempt_id, contract_id, pipe_id, for_principal, trigger_txid, success, dispute_txid, error, created_at FROM dispute_attempts`

func scanDisputeAttempt(s scanner) (*model.DisputeAttemptRecord, error) {
	var rec model.DisputeAttemptRecord
	var success int
	var createdAt string
	if err := s.Scan(&rec.AttemptID, &rec.ContractID, &rec.PipeID, &rec.ForPrincipal, &rec.TriggerTxid,
		&success, &rec.DisputeTxid, &rec.Error, &createdAt); err != nil {
		return nil, err
	}
	rec.Success = success != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}
