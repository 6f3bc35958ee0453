// Package structdata builds the SIP-018-style domain/message digest that
// the watchtower's own signatures are computed over: the dispute
// executor's re-signed closure and the co-signer's produced signature both
// hash through this single construction (spec.md §6, §9; see DESIGN.md for
// the Open Question this resolves). The readonly verifier does not use it;
// it passes Clarity-encoded arguments to the contract instead.
package structdata

import (
	"crypto/sha256"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/clarity"
	"github.com/stackflow/watchtower/internal/model"
)

// structuredDataPrefix is the 6-byte ASCII literal prepended to every
// digest, mirroring the chain's structured-data standard (spec.md §6).
const structuredDataPrefix = "SIP018"

// Domain identifies the contract and network a signature is scoped to.
type Domain struct {
	Name      string // contractId, ASCII
	Version   string // stackflowMessageVersion, ASCII
	ChainID   *uint256.Int
}

// ChainID returns 1 for mainnet, 2^31 otherwise, per spec.md §6.
func ChainID(network string) *uint256.Int {
	if network == "mainnet" {
		return uint256.NewInt(1)
	}
	return new(uint256.Int).Lsh(uint256.NewInt(1), 31)
}

// Message carries the transition actually being signed (spec.md §4.6
// step 5): canonical pipe key, balances in canonical orientation, nonce,
// action, actor, hashed secret, optional validAfter.
type Message struct {
	Key            model.PipeKey
	Balance1       *uint256.Int
	Balance2       *uint256.Int
	Nonce          *uint256.Int
	Action         model.Action
	Actor          string
	HashedSecret   []byte // sha256(secret), or nil if no secret
	ValidAfter     *uint256.Int
}

func domainValue(d Domain) clarity.Value {
	return clarity.Tuple(map[string]clarity.Value{
		"name":     clarity.ASCII(d.Name),
		"version":  clarity.ASCII(d.Version),
		"chain-id": clarity.UInt(d.ChainID),
	})
}

func messageValue(m Message) clarity.Value {
	token := clarity.None()
	if m.Key.Token != "" {
		token = clarity.Some(clarity.Principal(m.Key.Token))
	}
	validAfter := clarity.None()
	if m.ValidAfter != nil {
		validAfter = clarity.Some(clarity.UInt(m.ValidAfter))
	}
	secret := clarity.None()
	if len(m.HashedSecret) > 0 {
		secret = clarity.Some(clarity.Buffer(m.HashedSecret))
	}
	return clarity.Tuple(map[string]clarity.Value{
		"token":        token,
		"principal-1":  clarity.Principal(m.Key.Principal1),
		"principal-2":  clarity.Principal(m.Key.Principal2),
		"balance-1":    clarity.UInt(m.Balance1),
		"balance-2":    clarity.UInt(m.Balance2),
		"nonce":        clarity.UInt(m.Nonce),
		"action":       clarity.UInt(uint256.NewInt(uint64(m.Action))),
		"actor":        clarity.Principal(m.Actor),
		"hashed-secret": secret,
		"valid-after":  validAfter,
	})
}

// Digest computes sha256(prefix || domainHash || messageHash), the 32-byte
// value actually signed/recovered against (spec.md §6, §4.6 step 5).
func Digest(d Domain, m Message) ([32]byte, error) {
	domainBytes, err := clarity.Encode(domainValue(d))
	if err != nil {
		return [32]byte{}, err
	}
	msgBytes, err := clarity.Encode(messageValue(m))
	if err != nil {
		return [32]byte{}, err
	}
	domainHash := sha256.Sum256(domainBytes)
	msgHash := sha256.Sum256(msgBytes)

	buf := make([]byte, 0, len(structuredDataPrefix)+len(domainHash)+len(msgHash))
	buf = append(buf, []byte(structuredDataPrefix)...)
	buf = append(buf, domainHash[:]...)
	buf = append(buf, msgHash[:]...)
	return sha256.Sum256(buf), nil
}

// HashSecret returns sha256(secret), or nil if secret is empty (spec.md
// §4.6 step 5: "hashed-secret = sha256(secret) if secret present").
func HashSecret(secret []byte) []byte {
	if len(secret) == 0 {
		return nil
	}
	sum := sha256.Sum256(secret)
	return sum[:]
}
