package model_test

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/model"
)

func TestCanonicalizeOrderIndependent(t *testing.T) {
	a, err := model.Canonicalize("SP1AAA", "SP2BBB", "")
	require.NoError(t, err)
	b, err := model.Canonicalize("SP2BBB", "SP1AAA", "")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "SP1AAA", a.Principal1)
	require.Equal(t, "SP2BBB", a.Principal2)
}

func TestCanonicalizeRejectsSamePrincipal(t *testing.T) {
	_, err := model.Canonicalize("SP1AAA", "SP1AAA", "")
	require.Error(t, err)
}

func TestPipeKeyOrientationAndCounterparty(t *testing.T) {
	key := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}

	isP1, ok := key.Orientation("SP1AAA")
	require.True(t, ok)
	require.True(t, isP1)

	isP1, ok = key.Orientation("SP2BBB")
	require.True(t, ok)
	require.False(t, isP1)

	_, ok = key.Orientation("SP3CCC")
	require.False(t, ok)

	other, ok := key.Counterparty("SP1AAA")
	require.True(t, ok)
	require.Equal(t, "SP2BBB", other)
}

func TestPipeIDUsesStxForEmptyToken(t *testing.T) {
	key := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}
	require.Equal(t, "stx|SP1AAA|SP2BBB", key.PipeID())
}

func TestSnapshotBalanceForOrientation(t *testing.T) {
	key := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}
	snap := model.PipeSnapshot{Balance1: uint256.NewInt(100), Balance2: uint256.NewInt(200)}

	bal, ok := snap.BalanceFor(key, "SP1AAA")
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(100), bal)

	bal, ok = snap.BalanceFor(key, "SP2BBB")
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(200), bal)

	_, ok = snap.BalanceFor(key, "SP3CCC")
	require.False(t, ok)
}

func TestDisputeAttemptIDFallsBackWithoutTxid(t *testing.T) {
	require.Equal(t, "c|p|no-txid", model.DisputeAttemptID("c", "p", ""))
	require.Equal(t, "c|p|0xabc", model.DisputeAttemptID("c", "p", "0xabc"))
}

type nonceRow struct {
	nonce     *uint256.Int
	updatedAt time.Time
}

func TestSortByNonceThenUpdatedDesc(t *testing.T) {
	now := time.Now()
	rows := []nonceRow{
		{nonce: uint256.NewInt(1), updatedAt: now},
		{nonce: uint256.NewInt(3), updatedAt: now.Add(-time.Hour)},
		{nonce: uint256.NewInt(3), updatedAt: now},
		{nonce: nil, updatedAt: now},
	}
	model.SortByNonceThenUpdatedDesc(rows,
		func(r nonceRow) *uint256.Int { return r.nonce },
		func(r nonceRow) time.Time { return r.updatedAt },
	)
	require.Equal(t, uint256.NewInt(3), rows[0].nonce)
	require.Equal(t, now, rows[0].updatedAt)
	require.Equal(t, uint256.NewInt(3), rows[1].nonce)
	require.Equal(t, uint256.NewInt(1), rows[2].nonce)
	require.Nil(t, rows[3].nonce)
}
