package clarity_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/clarity"
)

func TestEncodeDecodeUintRoundTrip(t *testing.T) {
	v := clarity.UInt(uint256.NewInt(424242))
	enc, err := clarity.Encode(v)
	require.NoError(t, err)

	dec, err := clarity.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, clarity.KindUint, dec.Kind)
	require.Equal(t, uint256.NewInt(424242), dec.Int)
}

func TestEncodeDecodeBufferRoundTrip(t *testing.T) {
	v := clarity.Buffer([]byte{0xde, 0xad, 0xbe, 0xef})
	enc, err := clarity.Encode(v)
	require.NoError(t, err)

	dec, err := clarity.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, clarity.KindBuffer, dec.Kind)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, dec.Buffer)
}

func TestDecodeBoolTrueFalse(t *testing.T) {
	trueVal, err := clarity.Decode([]byte{0x03})
	require.NoError(t, err)
	require.True(t, trueVal.Bool)

	falseVal, err := clarity.Decode([]byte{0x04})
	require.NoError(t, err)
	require.False(t, falseVal.Bool)
}

func TestDecodeHexStripsPrefix(t *testing.T) {
	withPrefix, err := clarity.DecodeHex("0x09")
	require.NoError(t, err)
	require.Equal(t, clarity.KindOptionalNone, withPrefix.Kind)

	withoutPrefix, err := clarity.DecodeHex("09")
	require.NoError(t, err)
	require.Equal(t, clarity.KindOptionalNone, withoutPrefix.Kind)
}

func TestDecodeTruncatedBufferErrors(t *testing.T) {
	_, err := clarity.Decode([]byte{0x02, 0x00, 0x00, 0x00, 0x05, 0x01})
	require.Error(t, err)
}

func TestTupleEncodeIsKeySorted(t *testing.T) {
	tup := clarity.Tuple(map[string]clarity.Value{
		"zebra": clarity.UInt(uint256.NewInt(1)),
		"alpha": clarity.UInt(uint256.NewInt(2)),
	})
	enc, err := clarity.Encode(tup)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(enc[6:11]))

	dec, err := clarity.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, clarity.KindTuple, dec.Kind)
	require.Len(t, dec.Tuple, 2)
	require.Equal(t, uint256.NewInt(2), dec.Tuple["alpha"].Int)
	require.Equal(t, uint256.NewInt(1), dec.Tuple["zebra"].Int)
}
