// Package model holds the entities shared by the event parser, state
// store, watchtower core, and co-signer: PipeKey, PipeSnapshot, and the
// durable records the store persists (spec.md §3).
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// Action enumerates the off-chain state transitions a SignatureStateRecord
// can represent.
type Action int

const (
	ActionClose Action = iota
	ActionTransfer
	ActionDeposit
	ActionWithdraw
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionTransfer:
		return "transfer"
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// NoExpiry is the sentinel "no closure in progress" expiry height.
const NoExpiry = "340282366920938463463374607431768211455" // uint128 max

// PipeKey is the canonical identity of a pipe (spec.md §3). Token is empty
// for the native coin ("none" in Clarity terms).
type PipeKey struct {
	Token      string
	Principal1 string
	Principal2 string
}

// Canonicalize orders (a, b) by lexicographic byte comparison of their
// contract-format serialization, independent of caller order (spec.md §8
// invariant: canonicalize(a,b,tok) == canonicalize(b,a,tok)).
func Canonicalize(a, b, token string) (PipeKey, error) {
	if a == b {
		return PipeKey{}, errSamePrincipal
	}
	if a < b {
		return PipeKey{Token: token, Principal1: a, Principal2: b}, nil
	}
	return PipeKey{Token: token, Principal1: b, Principal2: a}, nil
}

var errSamePrincipal = &canonicalizeError{"principal-1 and principal-2 must differ"}

type canonicalizeError struct{ msg string }

func (e *canonicalizeError) Error() string { return e.msg }

// TokenOrSTX renders the token component of PipeId, "stx" for the native coin.
func (k PipeKey) TokenOrSTX() string {
	if strings.TrimSpace(k.Token) == "" {
		return "stx"
	}
	return k.Token
}

// PipeID is the derived stable identity used as a lookup key (spec.md §3).
func (k PipeKey) PipeID() string {
	return strings.Join([]string{k.TokenOrSTX(), k.Principal1, k.Principal2}, "|")
}

// Orientation reports whether principal occupies slot 1 or 2 in k. ok is
// false if principal is neither.
func (k PipeKey) Orientation(principal string) (isPrincipal1 bool, ok bool) {
	switch principal {
	case k.Principal1:
		return true, true
	case k.Principal2:
		return false, true
	default:
		return false, false
	}
}

// Counterparty returns the other principal in the pipe.
func (k PipeKey) Counterparty(principal string) (string, bool) {
	isP1, ok := k.Orientation(principal)
	if !ok {
		return "", false
	}
	if isP1 {
		return k.Principal2, true
	}
	return k.Principal1, true
}

// PendingDeposit is a pending deposit amount locked until burn-height.
type PendingDeposit struct {
	Amount     *uint256.Int
	BurnHeight uint64
}

// PipeSnapshot is the last observed on-chain state for a PipeKey (spec.md §3).
type PipeSnapshot struct {
	Balance1  *uint256.Int
	Balance2  *uint256.Int
	Pending1  *PendingDeposit
	Pending2  *PendingDeposit
	ExpiresAt *uint256.Int // nil means "no closure" (or NoExpiry sentinel)
	Nonce     *uint256.Int
	Closer    string // optional; empty means none
}

// BalanceFor returns the confirmed balance for principal given its
// orientation within key, or false if principal is not a party to key.
func (s PipeSnapshot) BalanceFor(key PipeKey, principal string) (*uint256.Int, bool) {
	isP1, ok := key.Orientation(principal)
	if !ok {
		return nil, false
	}
	if isP1 {
		return s.Balance1, true
	}
	return s.Balance2, true
}

// ObservedStateID renders the store lookup key for an ObservedPipeRecord.
func ObservedStateID(contractID, pipeID string) string {
	return contractID + "|" + pipeID
}

// ObservedPipeRecord is PipeSnapshot plus observation metadata (spec.md §3).
type ObservedPipeRecord struct {
	StateID     string
	ContractID  string
	Key         PipeKey
	Snapshot    PipeSnapshot
	EventName   string
	Txid        string
	BlockHeight uint64
	UpdatedAt   time.Time
}

// ClosureRecord records that a pipe is in a waiting period (spec.md §3).
type ClosureRecord struct {
	PipeID      string
	ContractID  string
	Key         PipeKey
	Closer      string
	ExpiresAt   *uint256.Int // nil => "no expiry", see Open Question in spec.md §9
	Nonce       *uint256.Int
	EventName   string
	TriggerTxid string
	BlockHeight uint64
	UpdatedAt   time.Time
}

// SignatureStateRecord is an off-chain state held on behalf of forPrincipal
// (spec.md §3).
type SignatureStateRecord struct {
	StateID       string
	ContractID    string
	PipeID        string
	ForPrincipal  string
	WithPrincipal string
	Token         string
	Amount        *uint256.Int
	MyBalance     *uint256.Int
	TheirBalance  *uint256.Int
	MySignature   string // 65-byte hex
	TheirSignature string
	Nonce         *uint256.Int
	Action        Action
	Actor         string
	Secret        string // optional 32-byte hex preimage
	ValidAfter    *uint256.Int
	BeneficialOnly bool
	UpdatedAt     time.Time
}

// SignatureStateID renders the store lookup key for a SignatureStateRecord.
func SignatureStateID(contractID, pipeID, forPrincipal string) string {
	return contractID + "|" + pipeID + "|" + forPrincipal
}

// DisputeAttemptRecord is one per trigger (spec.md §3).
type DisputeAttemptRecord struct {
	AttemptID    string
	ContractID   string
	PipeID       string
	ForPrincipal string
	TriggerTxid  string
	Success      bool
	DisputeTxid  string
	Error        string
	CreatedAt    time.Time
}

// DisputeAttemptID renders the idempotency key for a trigger (spec.md §3/§4.5.3).
func DisputeAttemptID(contractID, pipeID, triggerTxid string) string {
	if strings.TrimSpace(triggerTxid) == "" {
		return contractID + "|" + pipeID + "|no-txid"
	}
	return contractID + "|" + pipeID + "|" + triggerTxid
}

// RecordedEvent is a PipeEvent with observation metadata, bounded by a ring
// of at most maxRecentEvents (spec.md §3).
type RecordedEvent struct {
	Seq         int64
	ContractID  string
	Topic       string
	Txid        string
	BlockHeight uint64
	BlockHash   string
	EventIndex  int
	EventName   string
	Sender      string
	PipeKey     *PipeKey
	Pipe        *PipeSnapshot
	Source      string
	ObservedAt  time.Time
}

// SortByNonceThenUpdatedDesc sorts records by nonce descending, then
// updatedAt descending -- the /pipes merge order from spec.md §6.
func SortByNonceThenUpdatedDesc[T any](items []T, nonce func(T) *uint256.Int, updatedAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		ni, nj := nonce(items[i]), nonce(items[j])
		switch {
		case ni == nil && nj == nil:
		case ni == nil:
			return false
		case nj == nil:
			return true
		default:
			if cmp := ni.Cmp(nj); cmp != 0 {
				return cmp > 0
			}
		}
		return updatedAt(items[i]).After(updatedAt(items[j]))
	})
}
