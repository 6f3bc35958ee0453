package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner signs with an in-process secp256k1 private key. Address() is
// an Ethereum-style address derived from the key alone; no network-specific
// address is derived. Grounded on the teacher's EnvKMSSigner
// (services/payments-gateway/kms.go), generalized to sign an arbitrary
// pre-computed digest instead of Keccak256-hashing a fixed voucher payload.
type LocalSigner struct {
	principal string
	key       *ecdsa.PrivateKey
	address   string
}

// NewLocalSigner loads a hex-encoded secp256k1 private key (optional 0x
// prefix), matching the teacher's NewEnvKMSSigner decode path.
func NewLocalSigner(principal, hexKey string) (*LocalSigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("signer: empty private key material")
	}
	key, err := ethcrypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key material: %w", err)
	}
	return &LocalSigner{
		principal: principal,
		key:       key,
		address:   addressFromPub(&key.PublicKey),
	}, nil
}

func (s *LocalSigner) Enabled() bool     { return s != nil && s.key != nil }
func (s *LocalSigner) Principal() string { return s.principal }
func (s *LocalSigner) Address() string   { return s.address }

func (s *LocalSigner) EnsureReady(ctx context.Context) error {
	if !s.Enabled() {
		return fmt.Errorf("signer: local signer not configured")
	}
	return nil
}

// Sign produces a 65-byte RSV signature over digest. go-ethereum's Sign
// already returns a recoverable v in byte 64 and normalizes s to low-S, so
// no brute-force recovery search is needed here -- that path is reserved
// for the KMS variant, which only gets (r,s) back from the service.
func (s *LocalSigner) Sign(ctx context.Context, digest [32]byte) ([65]byte, error) {
	if !s.Enabled() {
		return [65]byte{}, fmt.Errorf("signer: local signer not configured")
	}
	select {
	case <-ctx.Done():
		return [65]byte{}, ctx.Err()
	default:
	}
	sig, err := ethcrypto.Sign(digest[:], s.key)
	if err != nil {
		return [65]byte{}, err
	}
	var out [65]byte
	copy(out[:], sig)
	return out, nil
}
