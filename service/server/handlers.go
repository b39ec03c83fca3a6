package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/craftmint/service/artifact"
	"github.com/brojonat/craftmint/service/purchase"
	"github.com/brojonat/craftmint/service/verify"
	"github.com/shopspring/decimal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 32-44 chars, give buffer
	maxSignatureLength = 128     // base58 signatures are up to 88 chars
)

// PurchaseService is the purchase orchestrator as seen by the HTTP layer.
type PurchaseService interface {
	Purchase(ctx context.Context, req purchase.Request) (*artifact.Artifact, error)
	ListArtifacts(ctx context.Context, owner string) ([]artifact.Artifact, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// verifyPaymentRequest is the body of POST /verify-payment.
type verifyPaymentRequest struct {
	TransactionSignature  string          `json:"transactionSignature"`
	UserPublicKey         string          `json:"userPublicKey"`
	Amount                decimal.Decimal `json:"amount"`
	CraftTokenMintAddress string          `json:"craftTokenMintAddress"`
	Email                 string          `json:"email,omitempty"`
}

type verifyPaymentResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Artifact *artifactResponse `json:"artifact,omitempty"`
}

// artifactResponse is the JSON response format for an artifact.
type artifactResponse struct {
	ArtifactID  string    `json:"artifactId"`
	ArtifactURI *string   `json:"artifactUri"`
	ImageURI    string    `json:"imageUri"`
	Owner       string    `json:"owner"`
	IssuedAt    time.Time `json:"issuedAt"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// handleVerifyPayment returns a handler that redeems a payment for an artifact.
// POST /verify-payment
func handleVerifyPayment(svc PurchaseService, defaultMint string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r.Context(), logger)
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req verifyPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, "request body too large", string(purchase.KindInvalidRequest), http.StatusBadRequest)
				return
			}
			logger.DebugContext(r.Context(), "invalid request body", "error", err)
			writeError(w, "invalid request body", string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}

		if req.CraftTokenMintAddress == "" {
			req.CraftTokenMintAddress = defaultMint
		}
		if err := validateVerifyPaymentRequest(&req); err != nil {
			writeError(w, err.Error(), string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}

		a, err := svc.Purchase(r.Context(), purchase.Request{
			Claim: verify.TransferClaim{
				TransactionReference: req.TransactionSignature,
				PayerAccount:         req.UserPublicKey,
				ExpectedAmount:       req.Amount,
				TokenMintAccount:     req.CraftTokenMintAddress,
			},
			NotifyEmail: req.Email,
		})
		if err != nil {
			writePurchaseError(w, r, err, logger)
			return
		}

		resp := artifactToResponse(*a)
		writeJSON(w, verifyPaymentResponse{
			Success:  true,
			Message:  "Payment verified and artifact issued",
			Artifact: &resp,
		}, http.StatusOK)
	})
}

// handleListArtifacts returns a handler that lists the artifacts owned by an account.
// GET /nfts/{ownerAccount}
func handleListArtifacts(svc PurchaseService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r.Context(), logger)
		owner := r.PathValue("ownerAccount")
		if err := validateAddress(owner); err != nil {
			logger.DebugContext(r.Context(), "invalid owner account", "owner", owner, "error", err)
			writeError(w, err.Error(), string(purchase.KindInvalidRequest), http.StatusBadRequest)
			return
		}

		artifacts, err := svc.ListArtifacts(r.Context(), owner)
		if err != nil {
			writePurchaseError(w, r, err, logger)
			return
		}

		logger.DebugContext(r.Context(), "artifacts listed", "owner", owner, "count", len(artifacts))

		resp := make([]artifactResponse, len(artifacts))
		for i, a := range artifacts {
			resp[i] = artifactToResponse(a)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleHealth reports 200 when the database answers a ping.
// GET /health
func handleHealth(db Pinger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r.Context(), logger)
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func artifactToResponse(a artifact.Artifact) artifactResponse {
	return artifactResponse{
		ArtifactID:  a.ID,
		ArtifactURI: a.URI,
		ImageURI:    a.ImageURI,
		Owner:       a.Owner,
		IssuedAt:    a.IssuedAt,
	}
}

// statusForKind maps purchase error kinds to HTTP status codes.
func statusForKind(kind purchase.Kind) int {
	switch kind {
	case purchase.KindInvalidRequest, purchase.KindPaymentRejected:
		return http.StatusBadRequest
	case purchase.KindDuplicateSubmission:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writePurchaseError writes the caller-safe part of a purchase error. The
// underlying cause is logged, never returned.
func writePurchaseError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var perr *purchase.Error
	if !errors.As(err, &perr) {
		logger.ErrorContext(r.Context(), "unexpected error", "error", err)
		writeError(w, "internal server error", "", http.StatusInternalServerError)
		return
	}

	status := statusForKind(perr.Kind)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "purchase failed",
			"kind", perr.Kind,
			"reason", perr.Reason,
			"error", perr.Err,
		)
	}
	writeError(w, perr.Reason, string(perr.Kind), status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, code string, statusCode int) {
	writeJSON(w, errorResponse{Success: false, Error: message, Code: code}, statusCode)
}

func validateVerifyPaymentRequest(req *verifyPaymentRequest) error {
	if req.TransactionSignature == "" || req.UserPublicKey == "" || req.CraftTokenMintAddress == "" || req.Amount.IsZero() {
		return errorf("missing parameters")
	}
	if err := validateSignature(req.TransactionSignature); err != nil {
		return err
	}
	if err := validateAddress(req.UserPublicKey); err != nil {
		return errorf("invalid userPublicKey: %v", err)
	}
	if err := validateAddress(req.CraftTokenMintAddress); err != nil {
		return errorf("invalid craftTokenMintAddress: %v", err)
	}
	if !req.Amount.IsPositive() {
		return errorf("amount must be positive")
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return errorf("invalid email address")
		}
	}
	return nil
}

// validateAddress checks that an account is safe to pass downstream. Whether
// it is a real ledger address is decided by verification, not here. Owners
// also become NATS subject tokens, so subject separators and wildcards are
// refused.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
		if unicode.IsSpace(r) || strings.ContainsRune(".*>", r) {
			return errorf("invalid characters in address: %q not allowed", r)
		}
	}

	return nil
}

// validateSignature bounds a transaction signature's size. Whether it
// decodes to 64 bytes is left to the ledger client.
func validateSignature(signature string) error {
	if len(signature) > maxSignatureLength {
		return errorf("transactionSignature too long: maximum length is %d characters", maxSignatureLength)
	}
	for _, r := range signature {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errorf("invalid transactionSignature: control characters and whitespace not allowed")
		}
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
