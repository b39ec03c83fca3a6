package server

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/brojonat/craftmint/service/purchase"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// maxPaymentAmount bounds the amount accepted by GET /payment-request.
var maxPaymentAmount = decimal.NewFromInt(1_000_000_000)

// PaymentRequest tells a wallet how to pay for an artifact.
type PaymentRequest struct {
	ID           string    `json:"id"`             // Unique request ID (UUID)
	PayToAddress string    `json:"pay_to_address"` // Treasury wallet
	Network      string    `json:"network"`        // "mainnet" or "devnet"
	TokenMint    string    `json:"token_mint"`
	Amount       string    `json:"amount"`     // Human-readable token amount
	BaseUnits    uint64    `json:"base_units"` // Amount in the mint's smallest unit
	Reference    string    `json:"reference"`  // Solana Pay reference key
	Memo         string    `json:"memo"`
	PaymentURL   string    `json:"payment_url"` // Solana Pay URL for wallet apps
	QRCodeData   string    `json:"qr_code_data"`
	CreatedAt    time.Time `json:"created_at"`
}

// paymentRequestConfig is the server configuration a payment request needs.
type paymentRequestConfig struct {
	Recipient string
	Network   string
	Mint      string
	Decimals  int32
}

// generatePaymentRequest creates a new payment request for amount tokens.
func generatePaymentRequest(cfg paymentRequestConfig, amount decimal.Decimal) (PaymentRequest, error) {
	requestID := uuid.New().String()
	memo := "craftmint:" + requestID
	now := time.Now()

	reference, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("generate reference key: %w", err)
	}

	baseUnits := amount.Shift(cfg.Decimals)
	if !baseUnits.IsInteger() {
		return PaymentRequest{}, errorf("amount has more than %d decimal places", cfg.Decimals)
	}

	paymentURL := buildSolanaPayURL(cfg.Recipient, amount, cfg.Mint, reference.PublicKey().String(), memo)

	// QR code is optional
	qrCodeData, err := generateQRCode(paymentURL)
	if err != nil {
		qrCodeData = ""
	}

	return PaymentRequest{
		ID:           requestID,
		PayToAddress: cfg.Recipient,
		Network:      cfg.Network,
		TokenMint:    cfg.Mint,
		Amount:       amount.String(),
		BaseUnits:    baseUnits.BigInt().Uint64(),
		Reference:    reference.PublicKey().String(),
		Memo:         memo,
		PaymentURL:   paymentURL,
		QRCodeData:   qrCodeData,
		CreatedAt:    now,
	}, nil
}

// buildSolanaPayURL creates a Solana Pay transfer request URL.
// Format: solana:{recipient}?amount={amount}&spl-token={mint}&reference={ref}&memo={memo}&label={label}&message={message}
func buildSolanaPayURL(recipient string, amount decimal.Decimal, tokenMint, reference, memo string) string {
	params := url.Values{}
	params.Set("amount", amount.String())
	params.Set("spl-token", tokenMint)
	params.Set("reference", reference)
	params.Set("memo", memo)
	params.Set("label", "Craftmint")
	params.Set("message", "Payment for a unique artifact")

	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// generateQRCode creates a QR code image from a payment URL and returns it as base64-encoded PNG.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}

// handlePaymentRequest returns a handler that builds a Solana Pay request.
// GET /payment-request?amount=5
func handlePaymentRequest(cfg paymentRequestConfig, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r.Context(), logger)
		if cfg.Recipient == "" {
			writeError(w, "recipient wallet not properly configured", string(purchase.KindServiceUnavailable), http.StatusInternalServerError)
			return
		}

		raw := r.URL.Query().Get("amount")
		if raw == "" {
			writeError(w, "amount query parameter is required", string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, "invalid amount parameter: must be a number", string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}
		if !amount.IsPositive() {
			writeError(w, "amount must be positive", string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}
		if amount.GreaterThan(maxPaymentAmount) {
			writeError(w, "amount is too large", string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}

		req, err := generatePaymentRequest(cfg, amount)
		if err != nil {
			if _, ok := err.(*validationError); ok {
				writeError(w, err.Error(), string(purchase.KindInvalidRequest), http.StatusBadRequest)
				return
			}
			logger.ErrorContext(r.Context(), "failed to generate payment request", "error", err)
			writeError(w, "internal server error", "", http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "payment request generated",
			"id", req.ID,
			"amount", req.Amount,
			"reference", req.Reference,
		)
		writeJSON(w, req, http.StatusOK)
	})
}
