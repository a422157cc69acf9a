// Package chaincore defines the wire-level data model shared by every
// other subsystem: Transaction and Block, their canonical hashing rule,
// and the structural invariants that make a chain self-consistent.
package chaincore

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON renders fields as sort-keyed, whitespace-free, UTF-8 JSON:
// the exact byte sequence this node hashes for transaction IDs and block
// hashes. encoding/json already marshals map[string]any keys in sorted
// order and produces compact output; this only has to turn off HTML
// escaping so the pre-image never differs from a plain json.dumps-style
// encoder on the addresses and hex strings the fields actually hold.
func CanonicalJSON(fields map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; canonical form has
	// none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
