package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/brojonat/craftmint/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringPtr(s string) *string { return &s }

func TestCompileJQFilters_Invalid(t *testing.T) {
	_, err := compileJQFilters([]string{".artifactId == "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestFilterArtifacts(t *testing.T) {
	artifacts := []client.Artifact{
		{ArtifactID: "a1", ImageURI: "https://ipfs.io/ipfs/img1", ArtifactURI: stringPtr("https://ipfs.io/ipfs/meta1")},
		{ArtifactID: "a2", ImageURI: "https://ipfs.io/ipfs/img2"},
		{ArtifactID: "b3", ImageURI: "https://gateway.example/img3", ArtifactURI: stringPtr("https://gateway.example/meta3")},
	}

	tests := []struct {
		name    string
		filters []string
		want    []string
	}{
		{"no filters", nil, []string{"a1", "a2", "b3"}},
		{"has metadata", []string{`.artifactUri != null`}, []string{"a1", "b3"}},
		{"prefix", []string{`.artifactId | startswith("a")`}, []string{"a1", "a2"}},
		{"all must match", []string{`.artifactUri != null`, `.imageUri | contains("ipfs.io")`}, []string{"a1"}},
		{"non-boolean is truthy", []string{`.imageUri`}, []string{"a1", "a2", "b3"}},
		{"runtime error excludes", []string{`.artifactId | tonumber`}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQFilters(tt.filters)
			require.NoError(t, err)

			got, err := filterArtifacts(artifacts, codes)
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ArtifactID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy(map[string]interface{}{}))
}

func TestNftsCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nfts/owner123", r.URL.Path)
		fmt.Fprint(w, `[{"artifactId":"a1","imageUri":"i1","owner":"owner123","artifactUri":"m1"},{"artifactId":"a2","imageUri":"i2","owner":"owner123","artifactUri":null}]`)
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "--json", "client", "nfts", "--must-jq", ".artifactUri != null", "owner123")
	require.NoError(t, err)

	var got []client.Artifact
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ArtifactID)
}

func TestVerifyPaymentCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify-payment", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sig123", body["transactionSignature"])
		assert.Equal(t, "payer123", body["userPublicKey"])
		assert.Equal(t, "bob@example.com", body["email"])

		fmt.Fprint(w, `{"success":true,"message":"ok","artifact":{"artifactId":"a1","imageUri":"i1","owner":"payer123"}}`)
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "verify-payment",
		"--payer", "payer123", "--amount", "5", "--email", "bob@example.com", "sig123")
	require.NoError(t, err)
	assert.Contains(t, out, "Payment verified")
	assert.Contains(t, out, "Artifact:   a1")
}

func TestVerifyPaymentCommand_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"error":"no transfer to recipient found","code":"payment_rejected"}`)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "client", "verify-payment", "--payer", "p", "--amount", "5", "sig123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transfer to recipient found")
}

func TestVerifyPaymentCommand_BadAmount(t *testing.T) {
	_, err := runApp(t, "client", "verify-payment", "--payer", "p", "--amount", "five", "sig123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --amount")
}

func TestPaymentRequestCommand_WritesQRCode(t *testing.T) {
	png := []byte("\x89PNG fake")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("amount"))
		json.NewEncoder(w).Encode(client.PaymentRequest{
			PayToAddress: "treasury",
			Amount:       "3",
			BaseUnits:    3000000,
			PaymentURL:   "solana:treasury?amount=3",
			QRCodeData:   base64.StdEncoding.EncodeToString(png),
		})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "qr.png")
	out, err := runApp(t, "--server-url", server.URL, "client", "payment-request", "--amount", "3", "--qr-out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "solana:treasury?amount=3")

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, png, written)
}
