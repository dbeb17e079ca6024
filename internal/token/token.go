// Package token derives compact selection tokens from content identifiers.
//
// Interaction payloads carried back by the delivery channel are size
// constrained, so a content identifier (often well over 50 bytes) cannot be
// embedded directly. The token is a truncated cryptographic digest of the
// identifier in a URL-safe alphabet: deterministic, so repeated searches for
// the same content mint the same token, and short enough for any payload.
// There is no decode operation; tokens resolve back to content identifiers
// through the cache store's mapping table.
package token

import (
	"crypto/sha256"
	"encoding/base64"
)

// digestBytes is the number of digest bytes kept before encoding.
// Six bytes encode to eight characters and leave the collision
// probability negligible for any realistic cache size.
const digestBytes = 6

// Encode returns the short token for a content identifier.
// The same input always yields the same token.
func Encode(contentID string) string {
	sum := sha256.Sum256([]byte(contentID))
	return base64.RawURLEncoding.EncodeToString(sum[:digestBytes])
}
