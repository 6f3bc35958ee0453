package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/model"
)

// AppendEvent appends evt to the recent-events ring and deletes rows beyond
// maxRecentEvents newest (spec.md §3 RecordedEvent, §9 "global mutable
// ring... bounded size enforced by a delete-beyond-limit query after every
// append").
func (s *Store) AppendEvent(ctx context.Context, evt model.RecordedEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		keyJSON, pipeJSON := marshalEventExtras(evt)
		_, err := tx.ExecContext(ctx, `INSERT INTO recent_events
			(contract_id, topic, txid, block_height, block_hash, event_index, event_name, sender,
			 pipe_key_json, pipe_json, source, observed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			evt.ContractID, evt.Topic, evt.Txid, evt.BlockHeight, evt.BlockHash, evt.EventIndex,
			evt.EventName, evt.Sender, keyJSON, pipeJSON, evt.Source, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return apperr.StateStore("append event", err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM recent_events WHERE seq NOT IN (
			SELECT seq FROM recent_events ORDER BY seq DESC LIMIT ?)`, s.maxRecentEvents)
		if err != nil {
			return apperr.StateStore("trim recent events", err)
		}
		return nil
	})
}

func marshalEventExtras(evt model.RecordedEvent) (keyJSON, pipeJSON sql.NullString) {
	if evt.PipeKey != nil {
		if b, err := json.Marshal(evt.PipeKey); err == nil {
			keyJSON = sql.NullString{String: string(b), Valid: true}
		}
	}
	if evt.Pipe != nil {
		if b, err := json.Marshal(snapshotJSON(*evt.Pipe)); err == nil {
			pipeJSON = sql.NullString{String: string(b), Valid: true}
		}
	}
	return
}

// snapshotJSON renders a PipeSnapshot as plain strings for storage/API use.
type snapshotJSON model.PipeSnapshot

func (s snapshotJSON) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"balance-1": s.Balance1.String(),
		"balance-2": s.Balance2.String(),
		"nonce":     s.Nonce.String(),
		"closer":    s.Closer,
	}
	if s.ExpiresAt != nil {
		m["expires-at"] = s.ExpiresAt.String()
	}
	return json.Marshal(m)
}

// ListRecentEvents returns up to limit events, newest first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]model.RecordedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq, contract_id, topic, txid, block_height, block_hash,
		event_index, event_name, sender, pipe_key_json, pipe_json, source, observed_at
		FROM recent_events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.StateStore("list recent events", err)
	}
	defer rows.Close()
	var out []model.RecordedEvent
	for rows.Next() {
		var evt model.RecordedEvent
		var keyJSON, pipeJSON sql.NullString
		var observedAt string
		if err := rows.Scan(&evt.Seq, &evt.ContractID, &evt.Topic, &evt.Txid, &evt.BlockHeight, &evt.BlockHash,
			&evt.EventIndex, &evt.EventName, &evt.Sender, &keyJSON, &pipeJSON, &evt.Source, &observedAt); err != nil {
			return nil, apperr.StateStore("scan recent event", err)
		}
		if keyJSON.Valid {
			var key model.PipeKey
			if json.Unmarshal([]byte(keyJSON.String), &key) == nil {
				evt.PipeKey = &key
			}
		}
		evt.ObservedAt, _ = time.Parse(time.RFC3339, observedAt)
		out = append(out, evt)
	}
	return out, nil
}
