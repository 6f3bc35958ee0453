package chainevent

import (
	"strings"

	"github.com/stackflow/watchtower/internal/clarity"
	"github.com/stackflow/watchtower/internal/model"
)

// Parser walks chain-observer envelopes into PipeEvents (C1, spec.md §4.1).
type Parser struct {
	// WatchedContracts, when non-empty, is the exact-match allowlist of
	// contract_identifier values a candidate must carry (spec.md §4.1 step 2).
	WatchedContracts map[string]struct{}
	// DefaultSuffix is the fallback suffix match used when WatchedContracts
	// is empty (e.g. ".stackflow-pipe").
	DefaultSuffix string
}

// NewParser builds a Parser from a watched-contract list.
func NewParser(watched []string, defaultSuffix string) *Parser {
	set := make(map[string]struct{}, len(watched))
	for _, w := range watched {
		w = strings.TrimSpace(w)
		if w != "" {
			set[w] = struct{}{}
		}
	}
	if defaultSuffix == "" {
		defaultSuffix = ".stackflow-pipe"
	}
	return &Parser{WatchedContracts: set, DefaultSuffix: defaultSuffix}
}

// candidate is a tagged node discovered by the walk (spec.md §4.1 step 1).
type candidate struct {
	contractID  string
	topic       string
	rawValue    string
	txid        string
	blockHeight uint64
	blockHash   string
	eventIndex  int
	sender      string
}

// Parse walks envelope (already json.Unmarshal'd into interface{}) and
// returns a deduplicated, ordered sequence of PipeEvents. Malformed
// candidates are silently skipped per spec.md §4.1 ("Failure").
func (p *Parser) Parse(envelope interface{}) []PipeEvent {
	candidates := p.walk(envelope)
	seen := make(map[string]struct{}, len(candidates))
	events := make([]PipeEvent, 0, len(candidates))
	for _, c := range candidates {
		if !p.matches(c.contractID) {
			continue
		}
		evt, ok := p.decode(c)
		if !ok {
			continue
		}
		key := evt.dedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		events = append(events, evt)
	}
	return events
}

func (p *Parser) matches(contractID string) bool {
	if contractID == "" {
		return false
	}
	if len(p.WatchedContracts) > 0 {
		_, ok := p.WatchedContracts[contractID]
		return ok
	}
	return strings.HasSuffix(contractID, p.DefaultSuffix)
}

// walk performs a breadth-first traversal of envelope, visiting each node
// at most once, collecting candidate contract events (spec.md §4.1 step 1).
func (p *Parser) walk(envelope interface{}) []candidate {
	var out []candidate
	queue := []interface{}{envelope}
	// envelope-level fallbacks available to every candidate found within it.
	envTxid, _ := lookupString(envelope, "txid", "tx_id")
	envHeight := lookupUint(envelope, "block_height", "burn_block_height", "height")
	envHash, _ := lookupString(envelope, "block_hash", "index_block_hash")

	// Plain decoded JSON (map[string]interface{}/[]interface{}) is always a
	// tree, never a graph, so a visited set is unnecessary here.
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		switch v := node.(type) {
		case map[string]interface{}:
			if c, ok := p.asCandidate(v, envTxid, envHeight, envHash); ok {
				out = append(out, c)
			}
			for _, child := range v {
				queue = append(queue, child)
			}
		case []interface{}:
			for _, child := range v {
				queue = append(queue, child)
			}
		}
	}
	return out
}

// asCandidate recognizes a node as a contract event per spec.md §4.1 step 1:
// either a contract_event/contract_log sub-node, or a node itself carrying
// contract_identifier, topic, a raw Clarity value, and a tx/event index.
func (p *Parser) asCandidate(node map[string]interface{}, envTxid string, envHeight uint64, envHash string) (candidate, bool) {
	target := node
	if sub, ok := node["contract_event"].(map[string]interface{}); ok {
		target = sub
	} else if sub, ok := node["contract_log"].(map[string]interface{}); ok {
		target = sub
	}
	contractID, ok := lookupString(target, "contract_identifier", "contractIdentifier")
	if !ok {
		return candidate{}, false
	}
	topic, _ := lookupString(target, "topic")
	rawValue, ok := lookupString(target, "raw_value", "rawValue", "value")
	if !ok {
		return candidate{}, false
	}
	txid, ok := lookupString(node, "txid", "tx_id")
	if !ok {
		txid = envTxid
	}
	height := lookupUint(node, "block_height", "height")
	if height == 0 {
		height = envHeight
	}
	blockHash, ok := lookupString(node, "block_hash")
	if !ok {
		blockHash = envHash
	}
	eventIndex := int(lookupUint(node, "event_index", "eventIndex"))
	sender, _ := lookupString(target, "sender")
	return candidate{
		contractID:  contractID,
		topic:       topic,
		rawValue:    rawValue,
		txid:        txid,
		blockHeight: height,
		blockHash:   blockHash,
		eventIndex:  eventIndex,
		sender:      sender,
	}, true
}

// decode implements spec.md §4.1 steps 3-4: Clarity-deserialize raw_value,
// flatten it with clarity.ToPlain, and normalize the resulting tuple map
// into a PipeEvent. A payload that does not flatten to a tuple map (such
// as a response-wrapped tuple) yields no event.
func (p *Parser) decode(c candidate) (PipeEvent, bool) {
	val, err := clarity.DecodeHex(c.rawValue)
	if err != nil {
		return PipeEvent{}, false
	}
	plain := clarity.ToPlain(val)
	tuple, ok := plain.(map[string]interface{})
	if !ok {
		return PipeEvent{}, false
	}
	eventName, _ := tuple["event"].(string)
	if eventName == "" {
		return PipeEvent{}, false
	}
	sender, _ := tuple["sender"].(string)
	if sender == "" {
		sender = c.sender
	}
	key := normalizePipeKey(tuple["pipe-key"])
	snap := normalizePipeSnapshot(tuple["pipe"])

	topic := c.topic
	if topic == "" {
		topic = "print"
	}
	return PipeEvent{
		ContractID:  c.contractID,
		Topic:       topic,
		Txid:        c.txid,
		BlockHeight: c.blockHeight,
		BlockHash:   c.blockHash,
		EventIndex:  c.eventIndex,
		EventName:   eventName,
		Sender:      sender,
		PipeKey:     key,
		Pipe:        snap,
	}, true
}

func normalizePipeKey(raw interface{}) *model.PipeKey {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	p1, _ := m["principal-1"].(string)
	p2, _ := m["principal-2"].(string)
	if p1 == "" || p2 == "" {
		return nil
	}
	token, _ := m["token"].(string)
	key, err := model.Canonicalize(p1, p2, token)
	if err != nil {
		return nil
	}
	return &key
}

func normalizePipeSnapshot(raw interface{}) *model.PipeSnapshot {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	snap := model.PipeSnapshot{
		Balance1: parseUint(asString(m["balance-1"])),
		Balance2: parseUint(asString(m["balance-2"])),
		Nonce:    parseUint(asString(m["nonce"])),
	}
	if snap.Balance1 == nil {
		snap.Balance1 = parseUint("0")
	}
	if snap.Balance2 == nil {
		snap.Balance2 = parseUint("0")
	}
	if snap.Nonce == nil {
		snap.Nonce = parseUint("0")
	}
	snap.ExpiresAt = parseUint(asString(m["expires-at"]))
	snap.Closer, _ = m["closer"].(string)
	snap.Pending1 = normalizePending(m["pending-1"])
	snap.Pending2 = normalizePending(m["pending-2"])
	return &snap
}

func normalizePending(raw interface{}) *model.PendingDeposit {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	amount := parseUint(asString(m["amount"]))
	if amount == nil {
		return nil
	}
	height := parseUint(asString(m["burn-height"]))
	h := uint64(0)
	if height != nil {
		h = height.Uint64()
	}
	return &model.PendingDeposit{Amount: amount, BurnHeight: h}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func lookupString(node interface{}, keys ...string) (string, bool) {
	m, ok := node.(map[string]interface{})
	if !ok {
		return "", false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func lookupUint(node interface{}, keys ...string) uint64 {
	m, ok := node.(map[string]interface{})
	if !ok {
		return 0
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return uint64(n)
			case string:
				if u := parseUint(n); u != nil {
					return u.Uint64()
				}
			}
		}
	}
	return 0
}
