// Package anonymize reduces client IP addresses to a privacy-preserving form
// before they are persisted.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"time"

	"reftrail/internal/config"
)

// IP applies the configured anonymization policy to the given address.
// Unparsable input is returned empty rather than stored raw.
func IP(ipAddress string) string {
	cfg := config.GetConfig()
	switch cfg.IPAnonymization {
	case config.IPPolicyHash:
		return hashIP(ipAddress, cfg.PrivateKey)
	default:
		return Truncate(ipAddress)
	}
}

// Truncate zeroes the host portion of the address: the last octet for IPv4
// (a /24) and everything past the first 48 bits for IPv6 (a /48).
func Truncate(ipAddress string) string {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ""
	}

	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}

// hashIP produces a keyed digest of the address. The salt rotates daily so
// hashed addresses cannot be correlated across days.
func hashIP(ipAddress, privateKey string) string {
	if net.ParseIP(ipAddress) == nil {
		return ""
	}

	day := time.Now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(privateKey + ":" + day + ":" + ipAddress))
	return hex.EncodeToString(sum[:])
}
