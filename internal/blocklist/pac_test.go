package blocklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPv4Only(t *testing.T) {
	entries := []string{
		"evil.example.org",
		"10.20.30.40",
		"203.0.113.0/24",
		"*.badcdn.io",
		"198.51.100.7",
	}
	assert.Equal(t, []string{"10.20.30.40", "198.51.100.7"}, IPv4Only(entries))
	assert.Nil(t, IPv4Only(nil))
}

func TestPACFile(t *testing.T) {
	pac := PACFile([]string{"10.20.30.40", "198.51.100.7"})

	require.Contains(t, pac, `"10.20.30.40","198.51.100.7"`)
	require.Contains(t, pac, "function FindProxyForURL(url, host)")
	require.Contains(t, pac, `"PROXY 127.0.0.1:9999"`)
	require.Contains(t, pac, "dnsResolve(host)")
}

func TestPACFileEmptyList(t *testing.T) {
	pac := PACFile(nil)
	require.Contains(t, pac, "var BLOCKED_IPS = [")
	require.Contains(t, pac, "return DIRECT;")
}
