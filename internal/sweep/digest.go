package sweep

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// digestDomain separates snapshot digests from any other SHA-256 use.
// Version suffix allows a future encoding change without hash collisions.
const digestDomain = "spheretrace/snapshot/v1"

// stateDigest computes a content-addressed hash over inventory and checked
// locations. The encoding is canonical: sorted keys, NFC-normalized names,
// no whitespace - so the same logical state always hashes identically no
// matter which code path produced it.
func stateDigest(inventory map[string]int, checked map[string]struct{}) string {
	var buf bytes.Buffer
	buf.WriteString(`{"checked":[`)

	locs := make([]string, 0, len(checked))
	for loc := range checked {
		locs = append(locs, norm.NFC.String(loc))
	}
	sort.Strings(locs)
	for i, loc := range locs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, loc)
	}

	buf.WriteString(`],"inventory":{`)

	items := make([]string, 0, len(inventory))
	normed := make(map[string]int, len(inventory))
	for item, count := range inventory {
		n := norm.NFC.String(item)
		items = append(items, n)
		normed[n] = count
	}
	sort.Strings(items)
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, item)
		buf.WriteByte(':')
		countJSON, _ := json.Marshal(normed[item])
		buf.Write(countJSON)
	}
	buf.WriteString("}}")

	h := sha256.New()
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

// writeJSONString writes a JSON-quoted string without HTML escaping.
func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encode appends a newline; trim it back off.
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1)
}
