package anonymize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateIPv4(t *testing.T) {
	assert.Equal(t, "203.0.113.0", Truncate("203.0.113.42"))
	assert.Equal(t, "10.1.2.0", Truncate("10.1.2.3"))
}

func TestTruncateIPv6(t *testing.T) {
	assert.Equal(t, "2001:db8:85a3::", Truncate("2001:db8:85a3:8d3:1319:8a2e:370:7348"))
}

func TestTruncateInvalid(t *testing.T) {
	assert.Equal(t, "", Truncate("not-an-ip"))
	assert.Equal(t, "", Truncate(""))
}
