package dispute

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/model"
	"github.com/stackflow/watchtower/internal/signer"
	"github.com/stackflow/watchtower/internal/stacksapi"
)

const testSignerKey = "92c781a20061b78d501b1d8f2d0ee3d434d6890736cc7c5b23820975e70375d"

func sampleRequest() Request {
	key := model.PipeKey{Principal1: "SP1AAA", Principal2: "SP2BBB"}
	return Request{
		ContractID: "SP1AAA.stackflow-pipe",
		Key:        key,
		State: model.SignatureStateRecord{
			ForPrincipal:   "SP1AAA",
			WithPrincipal:  "SP2BBB",
			MyBalance:      uint256.NewInt(100),
			TheirBalance:   uint256.NewInt(200),
			MySignature:    "0x" + hexOf(65, 0xaa),
			TheirSignature: "0x" + hexOf(65, 0xbb),
			Nonce:          uint256.NewInt(3),
			Action:         model.ActionClose,
			Actor:          "SP1AAA",
		},
		TriggerTxid: "0xtrigger",
	}
}

func hexOf(n int, fill byte) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = fill
	}
	return hex.EncodeToString(buf)
}

// TestBuildDisputeClosureTxPassesSignaturesThrough confirms mySignature
// and theirSignature both reach the contract-call argument list
// unchanged, rather than the latter being replaced by a freshly produced
// signature -- a previously-verified theirSignature is what the contract's
// verify-signature-request check expects to match the counterparty's key.
func TestBuildDisputeClosureTxPassesSignaturesThrough(t *testing.T) {
	req := sampleRequest()
	var authSig [65]byte
	for i := range authSig {
		authSig[i] = 0xcc
	}

	raw, err := buildDisputeClosureTx(req, authSig)
	require.NoError(t, err)

	myRaw, err := hex.DecodeString(hexOf(65, 0xaa))
	require.NoError(t, err)
	theirRaw, err := hex.DecodeString(hexOf(65, 0xbb))
	require.NoError(t, err)

	require.Contains(t, string(raw), string(myRaw))
	require.Contains(t, string(raw), string(theirRaw))

	// authSig authenticates the envelope and is only ever the prefix --
	// it must never be what got encoded as theirSignature.
	require.True(t, len(raw) >= len(authSig) && string(raw[:len(authSig)]) == string(authSig[:]))
	require.NotEqual(t, string(authSig[:]), string(theirRaw))
}

func TestNoopAlwaysFails(t *testing.T) {
	_, err := Noop{}.SubmitDispute(context.Background(), sampleRequest())
	require.Error(t, err)
}

func TestMockReturnsIncreasingTxids(t *testing.T) {
	m := &Mock{}
	r1, err := m.SubmitDispute(context.Background(), sampleRequest())
	require.NoError(t, err)
	r2, err := m.SubmitDispute(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, "0xmock00000001", r1.Txid)
	require.Equal(t, "0xmock00000002", r2.Txid)
}

func TestRealSubmitDisputeBroadcastsAndDecodesTxid(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"0xdisputed"`))
	}))
	defer srv.Close()

	s, err := signer.NewLocalSigner("SP1AAA", testSignerKey)
	require.NoError(t, err)

	real := &Real{
		Client:              stacksapi.New(srv.URL, ""),
		Signer:              s,
		Network:             "mainnet",
		StackflowMessageVer: "1",
	}

	res, err := real.SubmitDispute(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, "0xdisputed", res.Txid)
	require.NotEmpty(t, gotBody)
}

func TestRealSubmitDisputeFailsWhenSignerDisabled(t *testing.T) {
	real := &Real{Signer: signer.Disabled("SP1AAA")}
	_, err := real.SubmitDispute(context.Background(), sampleRequest())
	require.Error(t, err)
}
