package clarity

import (
	"crypto/sha256"
	"math/big"
	"strings"
)

// c32 is the base32 variant Stacks principals use for their human-readable
// form (no I/L/O/U, case-insensitive on decode). Only encoding is needed
// here: principals arrive pre-encoded in JSON payloads for every literal
// test scenario in spec.md §8; binary decoding from a contract_event's raw
// Clarity value is the only caller of EncodeC32Principal.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// EncodeC32Principal renders a standard or contract principal's version
// byte, 20-byte hash, and optional contract name into its `SP...`-style
// string form.
func EncodeC32Principal(version byte, hash160 []byte, contractName string) string {
	addr := c32CheckEncode(version, hash160)
	if contractName == "" {
		return addr
	}
	return addr + "." + contractName
}

func c32CheckEncode(version byte, hash160 []byte) string {
	sum := checksum(version, hash160)
	payload := append(append([]byte(nil), hash160...), sum...)
	return string(c32Alphabet[version]) + c32Encode(payload)
}

func checksum(version byte, hash160 []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, hash160...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// c32Encode converts data (big-endian bytes) to the c32 alphabet,
// preserving leading zero bytes as leading '0' characters.
func c32Encode(data []byte) string {
	leadingZeros := 0
	for _, b := range data {
		if b != 0 {
			break
		}
		leadingZeros++
	}
	n := new(big.Int).SetBytes(data)
	if n.Sign() == 0 {
		return strings.Repeat("0", leadingZeros)
	}
	var sb []byte
	base := big.NewInt(32)
	zero := big.NewInt(0)
	mod := new(big.Int)
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, mod)
		sb = append([]byte{c32Alphabet[mod.Int64()]}, sb...)
	}
	return strings.Repeat("0", leadingZeros) + string(sb)
}
