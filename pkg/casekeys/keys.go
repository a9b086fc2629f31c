package casekeys

import (
	"fmt"
	"strings"
)

// prefixAliases maps departmental prefixes that name the same accessioning
// stream onto one canonical prefix. The source systems are case-insensitive
// and historically emitted both spellings; the cache must treat them as one key.
var prefixAliases = map[string]string{
	"SP": "AP", // legacy surgical-pathology prefix, same stream as AP
}

// Canonical normalizes a raw case identifier to its canonical form: trimmed,
// uppercased, with aliased prefixes collapsed. Two textual variants that alias
// to the same canonical form always yield the same string here, and therefore
// the same cache entry.
func Canonical(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	for alias, canonical := range prefixAliases {
		if strings.HasPrefix(id, alias) {
			return canonical + id[len(alias):]
		}
	}
	return id
}

// StatusKey generates the cache key for a case status snapshot.
// The input must already be canonical (see Canonical).
func StatusKey(canonicalCaseID string) string {
	return fmt.Sprintf("case_status:%s", canonicalCaseID)
}
