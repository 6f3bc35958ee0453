// Package chainevent implements the Event Parser (spec.md §4.1, C1): it
// walks an arbitrary chain-observer JSON envelope, locates pipe-related
// print events, Clarity-decodes their payload, and normalizes them into
// PipeEvents.
package chainevent

import (
	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/model"
)

// PipeEvent is the normalized unit the parser emits (spec.md §4.1).
type PipeEvent struct {
	ContractID  string
	Topic       string
	Txid        string
	BlockHeight uint64
	BlockHash   string
	EventIndex  int
	EventName   string
	Sender      string
	PipeKey     *model.PipeKey
	Pipe        *model.PipeSnapshot
}

// dedupeKey implements spec.md §4.1 step 5.
func (e PipeEvent) dedupeKey() string {
	pipeID := ""
	if e.PipeKey != nil {
		pipeID = e.PipeKey.PipeID()
	}
	return e.Txid + "|" + itoa(e.EventIndex) + "|" + e.ContractID + "|" + e.EventName + "|" + e.Sender + "|" + pipeID
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func parseUint(s string) *uint256.Int {
	if s == "" {
		return nil
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil
	}
	return n
}
