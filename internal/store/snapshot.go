package store

import (
	"context"

	"github.com/stackflow/watchtower/internal/model"
)

// Snapshot is a consistent-enough view of every list the store holds
// (spec.md §4.2: "reads need not be in a single transaction: eventual
// consistency between lists is acceptable because the Core's callers never
// cross-index across lists outside a single store call").
type Snapshot struct {
	Closures        []model.ClosureRecord
	ObservedPipes   []model.ObservedPipeRecord
	SignatureStates []model.SignatureStateRecord
	DisputeAttempts []model.DisputeAttemptRecord
	RecentEvents    []model.RecordedEvent
}

// GetSnapshot implements the spec.md §4.2 getSnapshot() contract used by
// /health and diagnostics.
func (s *Store) GetSnapshot(ctx context.Context) (Snapshot, error) {
	closures, err := s.ListClosures(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	observed, err := s.ListObservedPipes(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	sigStates, err := s.ListSignatureStates(ctx, 500)
	if err != nil {
		return Snapshot{}, err
	}
	attempts, err := s.ListDisputeAttempts(ctx, 500)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := s.ListRecentEvents(ctx, 500)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Closures:        closures,
		ObservedPipes:   observed,
		SignatureStates: sigStates,
		DisputeAttempts: attempts,
		RecentEvents:    events,
	}, nil
}
