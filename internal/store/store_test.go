package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 50)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestObservedPipeUpsertAndGet(t *testing.T) {
	st := openTestStore(t)
	key := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}
	rec := model.ObservedPipeRecord{
		StateID:    model.ObservedStateID("SP1AAA.stackflow-pipe", key.PipeID()),
		ContractID: "SP1AAA.stackflow-pipe",
		Key:        key,
		Snapshot: model.PipeSnapshot{
			Balance1: uint256.NewInt(100),
			Balance2: uint256.NewInt(200),
			Nonce:    uint256.NewInt(1),
		},
		EventName: "create-pipe",
	}
	require.NoError(t, st.UpsertObservedPipe(context.Background(), rec))

	got, err := st.GetObservedPipe(context.Background(), rec.StateID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, uint256.NewInt(100), got.Snapshot.Balance1)
	require.Equal(t, uint256.NewInt(200), got.Snapshot.Balance2)

	rec.Snapshot.Balance1 = uint256.NewInt(150)
	rec.Snapshot.Nonce = uint256.NewInt(2)
	require.NoError(t, st.UpsertObservedPipe(context.Background(), rec))
	got, err = st.GetObservedPipe(context.Background(), rec.StateID)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(150), got.Snapshot.Balance1)
	require.Equal(t, uint256.NewInt(2), got.Snapshot.Nonce)
}

func TestObservedPipeMissingReturnsNil(t *testing.T) {
	st := openTestStore(t)
	got, err := st.GetObservedPipe(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListObservedPipesFiltersByPrincipal(t *testing.T) {
	st := openTestStore(t)
	key1 := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}
	key2 := model.PipeKey{Principal1: "SP3CCC", Principal2: "SP4DDD"}
	for _, k := range []model.PipeKey{key1, key2} {
		rec := model.ObservedPipeRecord{
			StateID:    model.ObservedStateID("c", k.PipeID()),
			ContractID: "c",
			Key:        k,
			Snapshot: model.PipeSnapshot{
				Balance1: uint256.NewInt(1),
				Balance2: uint256.NewInt(1),
				Nonce:    uint256.NewInt(1),
			},
		}
		require.NoError(t, st.UpsertObservedPipe(context.Background(), rec))
	}
	rows, err := st.ListObservedPipes(context.Background(), "SP1AAA")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, key1, rows[0].Key)
}

func TestSignatureStateUpsertAndGet(t *testing.T) {
	st := openTestStore(t)
	rec := model.SignatureStateRecord{
		StateID:       model.SignatureStateID("c", "p", "SP1AAA"),
		ContractID:    "c",
		PipeID:        "p",
		ForPrincipal:  "SP1AAA",
		WithPrincipal: "SP2BBB",
		Amount:        uint256.NewInt(0),
		MyBalance:     uint256.NewInt(100),
		TheirBalance:  uint256.NewInt(200),
		Nonce:         uint256.NewInt(1),
		Action:        model.ActionClose,
	}
	require.NoError(t, st.UpsertSignatureState(context.Background(), rec))

	got, err := st.GetSignatureState(context.Background(), rec.StateID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, uint256.NewInt(1), got.Nonce)
	require.Equal(t, model.ActionClose, got.Action)
}

func TestListSignatureStatesOrdersByUpdatedAtDesc(t *testing.T) {
	st := openTestStore(t)
	for i, principal := range []string{"SP1AAA", "SP2BBB", "SP3CCC"} {
		rec := model.SignatureStateRecord{
			StateID:      model.SignatureStateID("c", "p", principal),
			ContractID:   "c",
			PipeID:       "p",
			ForPrincipal: principal,
			Amount:       uint256.NewInt(0),
			MyBalance:    uint256.NewInt(uint64(i)),
			TheirBalance: uint256.NewInt(uint64(i)),
			Nonce:        uint256.NewInt(uint64(i)),
			Action:       model.ActionClose,
		}
		require.NoError(t, st.UpsertSignatureState(context.Background(), rec))
		time.Sleep(1100 * time.Millisecond) // updated_at has one-second resolution
	}
	rows, err := st.ListSignatureStates(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "SP3CCC", rows[0].ForPrincipal)
}

func TestClosureUpsertGetAndDelete(t *testing.T) {
	st := openTestStore(t)
	key := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}
	rec := model.ClosureRecord{
		PipeID:     key.PipeID(),
		ContractID: "c",
		Key:        key,
		Closer:     "SP1AAA",
		Nonce:      uint256.NewInt(1),
		EventName:  "force-cancel",
	}
	require.NoError(t, st.UpsertClosure(context.Background(), rec))

	got, err := st.GetClosure(context.Background(), rec.PipeID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "SP1AAA", got.Closer)

	list, err := st.ListClosures(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.DeleteClosure(context.Background(), rec.PipeID))
	got, err = st.GetClosure(context.Background(), rec.PipeID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRecentEventsRingIsBounded(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for i := 0; i < 5; i++ {
		err := st.AppendEvent(context.Background(), model.RecordedEvent{
			ContractID: "c",
			Topic:      "print",
			EventName:  "deposit",
			Source:     "new_block",
			ObservedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	events, err := st.ListRecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.LessOrEqual(t, len(events), 3)
}

func TestDisputeAttemptInsertIgnoresDuplicateAttemptID(t *testing.T) {
	st := openTestStore(t)
	rec := model.DisputeAttemptRecord{
		AttemptID:    model.DisputeAttemptID("c", "p", "0xabc"),
		ContractID:   "c",
		PipeID:       "p",
		ForPrincipal: "SP1AAA",
		TriggerTxid:  "0xabc",
		Success:      true,
		DisputeTxid:  "0xdispute",
	}
	require.NoError(t, st.InsertDisputeAttempt(context.Background(), rec))

	// A second insert for the same attempt id (a racing ingest) must not
	// error and must not duplicate the row.
	dup := rec
	dup.Success = false
	dup.Error = "should be dropped"
	require.NoError(t, st.InsertDisputeAttempt(context.Background(), dup))

	attempts, err := st.ListDisputeAttempts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].Success)
	require.Equal(t, "0xdispute", attempts[0].DisputeTxid)

	got, err := st.GetDisputeAttempt(context.Background(), rec.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, got)
}
