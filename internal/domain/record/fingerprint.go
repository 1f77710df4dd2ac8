package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// ComputeFingerprint returns a stable content hash of the record fields.
// Tag order does not matter; payload keys are hashed in sorted order (encoding/json sorts map keys).
func ComputeFingerprint(name string, status Status, tags []string, payload map[string]any) string {
	h := sha256.New()

	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(status))
	h.Write([]byte{0})

	sortedTags := slices.Clone(tags)
	slices.Sort(sortedTags)
	h.Write([]byte(strings.Join(sortedTags, "\x01")))
	h.Write([]byte{0})

	raw, err := json.Marshal(payload)
	if err == nil {
		h.Write(raw)
	}
	h.Write([]byte{0})

	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
