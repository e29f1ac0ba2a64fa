package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash returns the hex sha256 of a media payload. Object keys derive
// from it, so the same image referenced by several listings lands on one key.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MediaKey builds the object key for a mirrored file. The two-character
// shard in front keeps any single prefix from accumulating every object.
func MediaKey(hash, ext string) string {
	return fmt.Sprintf("media/%s/%s%s", hash[:2], hash, ext)
}
