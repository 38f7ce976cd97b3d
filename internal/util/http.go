package util

import (
	"math/rand"
	"net/http"
	"time"
)

// Realistic browser user agents; some CDNs refuse requests with a bare Go client string.
var commonUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Mobile/15E148 Safari/604.1",
}

// RandomUserAgent returns one of the common browser user agents.
func RandomUserAgent() string {
	if len(commonUserAgents) == 0 {
		return "tokfetch/0.2 (Go-client)"
	}
	return commonUserAgents[rand.Intn(len(commonUserAgents))]
}

// NewHTTPClient creates an http.Client whose Timeout bounds a single fetch
// attempt end to end (connect, headers, and body read).
func NewHTTPClient(attemptTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: attemptTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
