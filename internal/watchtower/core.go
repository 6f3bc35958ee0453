// Package watchtower implements the Watchtower Core (C5, spec.md §4.5):
// orchestrates ingestion, signature-state upsert, closure lifecycle,
// dispute triggering, and watchlist filtering. Grounded on the teacher's
// services/escrow-gateway Watcher (event-driven state machine over a
// store), generalized from escrow-specific event handling to the pipe
// lifecycle spec.md §4.5 names.
package watchtower

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
	"github.com/stackflow/watchtower/internal/chainevent"
	"github.com/stackflow/watchtower/internal/dispute"
	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/store"
	"github.com/stackflow/watchtower/internal/verifier"
)

// Core orchestrates C1-C4 around the State Store (spec.md §4.5).
type Core struct {
	Store            *store.Store
	Parser           *chainevent.Parser
	Verifier         verifier.Verifier
	Dispute          dispute.Executor
	WatchedPrincipals map[string]struct{} // empty means "accept any"
	DisputeOnlyBeneficial bool
	Logger           *slog.Logger
}

// New builds a Core. watchedPrincipals may be empty (accept any forPrincipal).
func New(st *store.Store, parser *chainevent.Parser, v verifier.Verifier, de dispute.Executor, watchedPrincipals []string, disputeOnlyBeneficial bool, logger *slog.Logger) *Core {
	set := make(map[string]struct{}, len(watchedPrincipals))
	for _, p := range watchedPrincipals {
		p = strings.TrimSpace(p)
		if p != "" {
			set[p] = struct{}{}
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		Store:             st,
		Parser:            parser,
		Verifier:          v,
		Dispute:           de,
		WatchedPrincipals: set,
		DisputeOnlyBeneficial: disputeOnlyBeneficial,
		Logger:            logger,
	}
}

// IngestResult is returned by Ingest (spec.md §4.5.1 step 3).
type IngestResult struct {
	ObservedEvents int
	ActiveClosures int
}

// Ingest implements spec.md §4.5.1: parse, append, route by event name.
func (c *Core) Ingest(ctx context.Context, payload interface{}, source string) (IngestResult, error) {
	events := c.Parser.Parse(payload)
	for _, evt := range events {
		if err := c.ingestOne(ctx, evt, source); err != nil {
			return IngestResult{}, apperr.Ingest("ingest event", err)
		}
	}
	closures, err := c.Store.ListClosures(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{ObservedEvents: len(events), ActiveClosures: len(closures)}, nil
}

func (c *Core) ingestOne(ctx context.Context, evt chainevent.PipeEvent, source string) error {
	if err := c.Store.AppendEvent(ctx, toRecordedEvent(evt, source)); err != nil {
		return err
	}
	if evt.PipeKey == nil {
		return nil
	}
	pipeID := evt.PipeKey.PipeID()

	switch evt.EventName {
	case "create-pipe", "fund-pipe", "deposit", "withdraw":
		if err := c.upsertObserved(ctx, evt, pipeID); err != nil {
			return err
		}
		return c.Store.DeleteClosure(ctx, pipeID)

	case "force-cancel", "force-close":
		if err := c.upsertObserved(ctx, evt, pipeID); err != nil {
			return err
		}
		if evt.Pipe == nil {
			return nil
		}
		closure := model.ClosureRecord{
			PipeID:      pipeID,
			ContractID:  evt.ContractID,
			Key:         *evt.PipeKey,
			Closer:      evt.Pipe.Closer,
			ExpiresAt:   evt.Pipe.ExpiresAt,
			Nonce:       evt.Pipe.Nonce,
			EventName:   evt.EventName,
			TriggerTxid: evt.Txid,
			BlockHeight: evt.BlockHeight,
		}
		if err := c.Store.UpsertClosure(ctx, closure); err != nil {
			return err
		}
		return c.closureResponse(ctx, closure)

	case "finalize", "dispute-closure", "close-pipe":
		if err := c.Store.DeleteClosure(ctx, pipeID); err != nil {
			return err
		}
		return c.upsertObserved(ctx, evt, pipeID)

	default:
		return c.upsertObserved(ctx, evt, pipeID)
	}
}

func (c *Core) upsertObserved(ctx context.Context, evt chainevent.PipeEvent, pipeID string) error {
	if evt.Pipe == nil {
		return nil
	}
	rec := model.ObservedPipeRecord{
		StateID:     model.ObservedStateID(evt.ContractID, pipeID),
		ContractID:  evt.ContractID,
		Key:         *evt.PipeKey,
		Snapshot:    *evt.Pipe,
		EventName:   evt.EventName,
		Txid:        evt.Txid,
		BlockHeight: evt.BlockHeight,
	}
	return c.Store.UpsertObservedPipe(ctx, rec)
}

func toRecordedEvent(evt chainevent.PipeEvent, source string) model.RecordedEvent {
	return model.RecordedEvent{
		ContractID:  evt.ContractID,
		Topic:       evt.Topic,
		Txid:        evt.Txid,
		BlockHeight: evt.BlockHeight,
		BlockHash:   evt.BlockHash,
		EventIndex:  evt.EventIndex,
		EventName:   evt.EventName,
		Sender:      evt.Sender,
		PipeKey:     evt.PipeKey,
		Pipe:        evt.Pipe,
		Source:      source,
		ObservedAt:  time.Now().UTC(),
	}
}

// IngestBurnBlock implements spec.md §4.5.2.
func (c *Core) IngestBurnBlock(ctx context.Context, burnHeight uint64, source string) (int, error) {
	closures, err := c.Store.ListClosures(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	height := uint256.NewInt(burnHeight)
	for _, cl := range closures {
		if cl.ExpiresAt == nil {
			continue
		}
		if cl.ExpiresAt.Cmp(height) >= 0 {
			continue
		}
		if err := c.Store.DeleteClosure(ctx, cl.PipeID); err != nil {
			return expired, err
		}
		expired++
		_ = c.Store.AppendEvent(ctx, model.RecordedEvent{
			ContractID: cl.ContractID,
			Topic:      "print",
			EventName:  "expired-closure",
			PipeKey:    &cl.Key,
			Source:     source,
			ObservedAt: time.Now().UTC(),
		})
	}
	return expired, nil
}
