package visitors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("203.0.113.42", "Mozilla/5.0 Test")
	b := Fingerprint("203.0.113.42", "Mozilla/5.0 Test")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDiffersPerInput(t *testing.T) {
	base := Fingerprint("203.0.113.42", "Mozilla/5.0 Test")

	assert.NotEqual(t, base, Fingerprint("203.0.113.43", "Mozilla/5.0 Test"))
	assert.NotEqual(t, base, Fingerprint("203.0.113.42", "Mozilla/5.0 Other"))
}

func TestAliasIsDeterministic(t *testing.T) {
	fp := Fingerprint("203.0.113.42", "Mozilla/5.0 Test")

	assert.Equal(t, Alias(fp), Alias(fp))
	assert.NotEmpty(t, Alias(fp))
}
