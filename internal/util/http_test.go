package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomUserAgent(t *testing.T) {
	known := make(map[string]bool, len(commonUserAgents))
	for _, ua := range commonUserAgents {
		known[ua] = true
	}
	for i := 0; i < 20; i++ {
		ua := RandomUserAgent()
		require.NotEmpty(t, ua)
		assert.True(t, known[ua])
	}
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(30 * time.Second)
	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.NotNil(t, client.Transport)
}
