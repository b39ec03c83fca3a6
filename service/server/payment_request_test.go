package server

import (
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTreasury = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	testMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testPaymentConfig() paymentRequestConfig {
	return paymentRequestConfig{
		Recipient: testTreasury,
		Network:   "devnet",
		Mint:      testMint,
		Decimals:  6,
	}
}

func TestGeneratePaymentRequest(t *testing.T) {
	before := time.Now()
	req, err := generatePaymentRequest(testPaymentConfig(), decimal.RequireFromString("5.25"))
	require.NoError(t, err)

	_, err = uuid.Parse(req.ID)
	assert.NoError(t, err, "ID should be a UUID")
	assert.Equal(t, "craftmint:"+req.ID, req.Memo)
	assert.Equal(t, testTreasury, req.PayToAddress)
	assert.Equal(t, "devnet", req.Network)
	assert.Equal(t, "5.25", req.Amount)
	assert.Equal(t, uint64(5_250_000), req.BaseUnits)
	assert.False(t, req.CreatedAt.Before(before))

	_, err = solanago.PublicKeyFromBase58(req.Reference)
	assert.NoError(t, err, "reference should be a public key")

	assert.True(t, strings.HasPrefix(req.PaymentURL, "solana:"+testTreasury+"?"))
	decoded, err := base64.StdEncoding.DecodeString(req.QRCodeData)
	require.NoError(t, err)
	_, err = png.Decode(strings.NewReader(string(decoded)))
	assert.NoError(t, err, "QR code should be a PNG")
}

func TestGeneratePaymentRequest_TooPrecise(t *testing.T) {
	_, err := generatePaymentRequest(testPaymentConfig(), decimal.RequireFromString("0.0000001"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decimal places")
}

func TestGeneratePaymentRequest_UniqueReferences(t *testing.T) {
	a, err := generatePaymentRequest(testPaymentConfig(), decimal.NewFromInt(1))
	require.NoError(t, err)
	b, err := generatePaymentRequest(testPaymentConfig(), decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Reference, b.Reference)
}

func TestBuildSolanaPayURL(t *testing.T) {
	paymentURL := buildSolanaPayURL(testTreasury, decimal.RequireFromString("1.5"), testMint, "RefKey111", "craftmint:abc")

	parts := strings.SplitN(strings.TrimPrefix(paymentURL, "solana:"), "?", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, testTreasury, parts[0])

	params, err := url.ParseQuery(parts[1])
	require.NoError(t, err)
	assert.Equal(t, "1.5", params.Get("amount"))
	assert.Equal(t, testMint, params.Get("spl-token"))
	assert.Equal(t, "RefKey111", params.Get("reference"))
	assert.Equal(t, "craftmint:abc", params.Get("memo"))
	assert.NotEmpty(t, params.Get("label"))
	assert.NotEmpty(t, params.Get("message"))
}

func TestGenerateQRCode_DifferentURLsProduceDifferentCodes(t *testing.T) {
	qr1, err := generateQRCode("solana:Wallet1?amount=1.0")
	require.NoError(t, err)
	qr2, err := generateQRCode("solana:Wallet2?amount=2.0")
	require.NoError(t, err)

	assert.NotEqual(t, qr1, qr2)
}

func TestHandlePaymentRequest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		cfg            paymentRequestConfig
		query          string
		expectedStatus int
		expectedCode   string
	}{
		{"valid", testPaymentConfig(), "?amount=5", http.StatusOK, ""},
		{"missing amount", testPaymentConfig(), "", http.StatusBadRequest, "invalid_request"},
		{"not a number", testPaymentConfig(), "?amount=five", http.StatusBadRequest, "invalid_request"},
		{"zero", testPaymentConfig(), "?amount=0", http.StatusBadRequest, "invalid_request"},
		{"negative", testPaymentConfig(), "?amount=-2", http.StatusBadRequest, "invalid_request"},
		{"too large", testPaymentConfig(), "?amount=1e12", http.StatusBadRequest, "invalid_request"},
		{"too precise", testPaymentConfig(), "?amount=0.0000001", http.StatusBadRequest, "invalid_request"},
		{"no identity", paymentRequestConfig{Mint: testMint, Decimals: 6}, "?amount=5", http.StatusInternalServerError, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/payment-request"+tt.query, nil)
			w := httptest.NewRecorder()

			handlePaymentRequest(tt.cfg, logger).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "body: %s", w.Body.String())
			if tt.expectedCode != "" {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.expectedCode, resp.Code)
				assert.False(t, resp.Success)
				return
			}

			var pr PaymentRequest
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pr))
			assert.Equal(t, testTreasury, pr.PayToAddress)
			assert.Equal(t, uint64(5_000_000), pr.BaseUnits)
		})
	}
}
