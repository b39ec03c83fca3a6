package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.mainnet-beta.solana.com", "mainnet"},
		{"https://api.devnet.solana.com", "devnet"},
		{"https://mainnet.helius-rpc.com/?api-key=secret", "helius"},
		{"https://example.quiknode.pro/secret/", "quiknode"},
		{"http://localhost:8899", "localhost"},
		{"https://rpc.example.org", "rpc.example.org"},
		{"://bad", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, endpointLabel(tt.url))
		})
	}
}
