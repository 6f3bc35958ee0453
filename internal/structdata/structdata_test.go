package structdata_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/structdata"
)

func TestDigestIsDeterministic(t *testing.T) {
	domain := structdata.Domain{Name: "SP1AAA.stackflow-pipe", Version: "1", ChainID: structdata.ChainID("mainnet")}
	msg := structdata.Message{
		Key:      model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"},
		Balance1: uint256.NewInt(100),
		Balance2: uint256.NewInt(200),
		Nonce:    uint256.NewInt(1),
		Action:   model.ActionTransfer,
		Actor:    "SP1AAA",
	}

	d1, err := structdata.Digest(domain, msg)
	require.NoError(t, err)
	d2, err := structdata.Digest(domain, msg)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestDigestChangesWithNonce(t *testing.T) {
	domain := structdata.Domain{Name: "SP1AAA.stackflow-pipe", Version: "1", ChainID: structdata.ChainID("mainnet")}
	base := structdata.Message{
		Key:      model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"},
		Balance1: uint256.NewInt(100),
		Balance2: uint256.NewInt(200),
		Nonce:    uint256.NewInt(1),
		Action:   model.ActionTransfer,
		Actor:    "SP1AAA",
	}
	bumped := base
	bumped.Nonce = uint256.NewInt(2)

	d1, err := structdata.Digest(domain, base)
	require.NoError(t, err)
	d2, err := structdata.Digest(domain, bumped)
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)
}

func TestChainIDMainnetVersusOther(t *testing.T) {
	require.Equal(t, uint256.NewInt(1), structdata.ChainID("mainnet"))
	require.NotEqual(t, uint256.NewInt(1), structdata.ChainID("testnet"))
}

func TestHashSecretEmptyIsNil(t *testing.T) {
	require.Nil(t, structdata.HashSecret(nil))
	require.Nil(t, structdata.HashSecret([]byte{}))
	require.NotNil(t, structdata.HashSecret([]byte("secret")))
}
