package partners

import (
	"crypto/rand"
	"fmt"
)

// Referral codes are short, URL-safe and unambiguous: no 0/O, 1/l/I pairs,
// lowercase plus digits so they survive case-folding messengers.
const codeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

const codeLength = 8

// GenerateCode returns a random referral code. Collisions are handled by the
// unique index at insert time.
func GenerateCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// ValidateCode checks a caller-supplied referral code for URL safety.
func ValidateCode(code string) error {
	if len(code) < 4 || len(code) > 12 {
		return fmt.Errorf("referral code must be 4-12 characters, got %d", len(code))
	}
	for _, r := range code {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return fmt.Errorf("referral code contains invalid character %q", r)
		}
	}
	return nil
}
