// Package sha256 provides the deterministic fingerprints used for
// deduplication: canonical item ids and normalized title/content hashes.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalizedContentLen bounds how much lowercased content participates in
// the normalized hash. Matches the persisted dedup index.
const normalizedContentLen = 500

// ItemID returns the canonical id for an item: the hex SHA-256 of the URL
// concatenated with the title. Identical inputs always produce identical
// ids.
func ItemID(url, title string) string {
	sum := sha256.Sum256([]byte(url + title))
	return hex.EncodeToString(sum[:])
}

// NormalizedHash fingerprints an item for exact title/content matching:
// lowercased title plus the first 500 bytes of lowercased content.
func NormalizedHash(title, content string) string {
	c := strings.ToLower(content)
	if len(c) > normalizedContentLen {
		c = c[:normalizedContentLen]
	}
	sum := sha256.Sum256([]byte(strings.ToLower(title) + "\n" + c))
	return hex.EncodeToString(sum[:])
}

// CacheKey derives the content-addressed embedding cache key. The model id
// participates so switching models invalidates old entries instead of mixing
// vector spaces.
func CacheKey(modelID, text string) string {
	sum := sha256.Sum256([]byte(modelID + ":" + text))
	return hex.EncodeToString(sum[:])
}
