// Package signer implements the Signer capability shared by the dispute
// executor (C4) and co-signer service (C6): given a 32-byte digest,
// produce a 65-byte RSV secp256k1 signature, either from an in-process
// key or from an external KMS (spec.md §4.6, §9). Grounded on the
// teacher's EnvKMSSigner (services/payments-gateway/kms.go) and
// SignVoucher/RecoverVoucherSignerAddress (services/swap-gateway/voucher.go):
// same go-ethereum crypto primitives, generalized from one fixed
// voucher-hash payload to an arbitrary pre-computed digest, and from one
// env-key variant to the local/KMS pair spec.md §4.6 names.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/stackflow/watchtower/internal/apperr"
)

// Signer is implemented by the local-key and KMS variants (spec.md §9:
// "model as a capability set ... with three disjoint implementations").
type Signer interface {
	Enabled() bool
	Principal() string
	Address() string
	EnsureReady(ctx context.Context) error
	Sign(ctx context.Context, digest [32]byte) (rsv [65]byte, err error)
}

// secp256k1N is the curve order, needed for low-S normalization.
var secp256k1N = ethcrypto.S256().Params().N

var halfN = new(big.Int).Rsh(secp256k1N, 1)

// normalizeLowS flips s to n-s when it exceeds n/2, per spec.md §9 ("Low-S
// normalization is mandatory before recovery").
func normalizeLowS(s *big.Int) *big.Int {
	if s.Cmp(halfN) > 0 {
		return new(big.Int).Sub(secp256k1N, s)
	}
	return s
}

// findRecoveryID brute-forces v in {0,1,2,3} against the known public key,
// per spec.md §9 ("brute-forced ... because the standard Sign API returns
// only r,s").
func findRecoveryID(digest [32]byte, r, s *big.Int, want *ecdsa.PublicKey) (byte, error) {
	rBytes := make([]byte, 32)
	r.FillBytes(rBytes)
	sBytes := make([]byte, 32)
	s.FillBytes(sBytes)
	wantBytes := ethcrypto.FromECDSAPub(want)

	for v := byte(0); v < 4; v++ {
		candidate := make([]byte, 65)
		copy(candidate[:32], rBytes)
		copy(candidate[32:64], sBytes)
		candidate[64] = v
		pub, err := ethcrypto.SigToPub(digest[:], candidate)
		if err != nil {
			continue
		}
		if hex.EncodeToString(ethcrypto.FromECDSAPub(pub)) == hex.EncodeToString(wantBytes) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("signer: no recovery id reproduces the expected public key")
}

// assembleRSV builds the final 65-byte signature from a DER-less (r,s) pair
// and the target public key, applying low-S normalization before the
// recovery-id search (spec.md §4.6, §9).
func assembleRSV(digest [32]byte, r, s *big.Int, pub *ecdsa.PublicKey) ([65]byte, error) {
	s = normalizeLowS(s)
	v, err := findRecoveryID(digest, r, s, pub)
	if err != nil {
		return [65]byte{}, err
	}
	var out [65]byte
	r.FillBytes(out[:32])
	s.FillBytes(out[32:64])
	out[64] = v
	return out, nil
}

// addressFromPub renders the Ethereum-style 20-byte address hex for a
// public key; used only for the signer's informational Address(), not for
// any on-chain principal (the watchtower's principals are Stacks c32
// addresses derived elsewhere).
func addressFromPub(pub *ecdsa.PublicKey) string {
	return strings.ToLower(ethcrypto.PubkeyToAddress(*pub).Hex())
}

// disabled is the zero-value Signer used when no key is configured:
// Enabled() reports false and every other method fails loudly rather than
// silently no-op-ing.
type disabled struct{ principal string }

// Disabled returns a Signer with no key material configured.
func Disabled(principal string) Signer { return disabled{principal: principal} }

func (d disabled) Enabled() bool     { return false }
func (d disabled) Principal() string { return d.principal }
func (d disabled) Address() string   { return "" }
func (d disabled) EnsureReady(ctx context.Context) error {
	return apperr.CoSigner("signer not configured", nil)
}
func (d disabled) Sign(ctx context.Context, digest [32]byte) ([65]byte, error) {
	return [65]byte{}, apperr.CoSigner("signer not configured", nil)
}
