package signer_test

import (
	"context"
	"crypto/sha256"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/signer"
)

const testKey = "92c781a20061b78d501b1d8f2d0ee3d434d6890736cc7c5b23820975e70375d"

func TestLocalSignerSignRecoversAddress(t *testing.T) {
	s, err := signer.NewLocalSigner("SP1AAA", testKey)
	require.NoError(t, err)
	require.True(t, s.Enabled())
	require.NoError(t, s.EnsureReady(context.Background()))

	digest := sha256.Sum256([]byte("some message"))
	rsv, err := s.Sign(context.Background(), digest)
	require.NoError(t, err)

	pub, err := ethcrypto.SigToPub(digest[:], rsv[:])
	require.NoError(t, err)
	require.True(t, strings.EqualFold(s.Address(), ethcrypto.PubkeyToAddress(*pub).Hex()))
}

func TestLocalSignerRejectsEmptyKey(t *testing.T) {
	_, err := signer.NewLocalSigner("SP1AAA", "")
	require.Error(t, err)
}

func TestDisabledSignerAlwaysFails(t *testing.T) {
	d := signer.Disabled("SP1AAA")
	require.False(t, d.Enabled())
	require.Error(t, d.EnsureReady(context.Background()))
	_, err := d.Sign(context.Background(), sha256.Sum256(nil))
	require.Error(t, err)
}
