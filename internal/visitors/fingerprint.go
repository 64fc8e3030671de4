package visitors

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives a stable visitor identity from the client IP and
// user-agent string. The same pair always produces the same value, within a
// process and across processes - de-duplication relies on this, so no salt is
// mixed in. The raw IP is only used for hashing here; persistence anonymizes
// it separately.
func Fingerprint(ipAddress, userAgent string) string {
	hash := sha256.Sum256([]byte(ipAddress + ":" + userAgent))
	return hex.EncodeToString(hash[:])
}
