package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/craftmint/service/artifact"
	"github.com/brojonat/craftmint/service/purchase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	testPayer     = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
)

// fakePurchaseService records requests and returns canned results.
type fakePurchaseService struct {
	purchaseFn func(req purchase.Request) (*artifact.Artifact, error)
	listFn     func(owner string) ([]artifact.Artifact, error)
	requests   []purchase.Request
}

func (f *fakePurchaseService) Purchase(ctx context.Context, req purchase.Request) (*artifact.Artifact, error) {
	f.requests = append(f.requests, req)
	return f.purchaseFn(req)
}

func (f *fakePurchaseService) ListArtifacts(ctx context.Context, owner string) ([]artifact.Artifact, error) {
	return f.listFn(owner)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func issuedArtifact(owner string) *artifact.Artifact {
	uri := "https://ipfs.io/ipfs/QmMeta"
	return &artifact.Artifact{
		ID:       "1700000000000-abcdef",
		URI:      &uri,
		ImageURI: "https://ipfs.io/ipfs/QmImage",
		Owner:    owner,
		IssuedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func postVerify(t *testing.T, svc PurchaseService, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/verify-payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handleVerifyPayment(svc, testMint, discardLogger()).ServeHTTP(w, req)
	return w
}

func validBody(extra map[string]interface{}) string {
	body := map[string]interface{}{
		"transactionSignature":  testSignature,
		"userPublicKey":         testPayer,
		"amount":                5,
		"craftTokenMintAddress": testMint,
	}
	for k, v := range extra {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func TestHandleVerifyPayment_Success(t *testing.T) {
	svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
		return issuedArtifact(req.Claim.PayerAccount), nil
	}}

	w := postVerify(t, svc, validBody(map[string]interface{}{"email": "alice@example.com"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp verifyPaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Payment verified and artifact issued", resp.Message)
	require.NotNil(t, resp.Artifact)
	assert.Equal(t, "1700000000000-abcdef", resp.Artifact.ArtifactID)
	assert.Equal(t, testPayer, resp.Artifact.Owner)
	require.NotNil(t, resp.Artifact.ArtifactURI)

	require.Len(t, svc.requests, 1)
	got := svc.requests[0]
	assert.Equal(t, testSignature, got.Claim.TransactionReference)
	assert.Equal(t, testPayer, got.Claim.PayerAccount)
	assert.Equal(t, testMint, got.Claim.TokenMintAccount)
	assert.Equal(t, "5", got.Claim.ExpectedAmount.String())
	assert.Equal(t, "alice@example.com", got.NotifyEmail)
}

func TestHandleVerifyPayment_DefaultsMint(t *testing.T) {
	svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
		return issuedArtifact(req.Claim.PayerAccount), nil
	}}

	w := postVerify(t, svc, validBody(map[string]interface{}{"craftTokenMintAddress": nil}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testMint, svc.requests[0].Claim.TokenMintAccount)
}

func TestHandleVerifyPayment_NullArtifactURI(t *testing.T) {
	svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
		a := issuedArtifact(req.Claim.PayerAccount)
		a.URI = nil
		return a, nil
	}}

	w := postVerify(t, svc, validBody(nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"artifactUri":null`)
}

func TestHandleVerifyPayment_Validation(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		errContains string
	}{
		{"malformed json", `{"transactionSignature":`, "invalid request body"},
		{"missing signature", validBody(map[string]interface{}{"transactionSignature": nil}), "missing parameters"},
		{"missing payer", validBody(map[string]interface{}{"userPublicKey": nil}), "missing parameters"},
		{"missing amount", validBody(map[string]interface{}{"amount": nil}), "missing parameters"},
		{"zero amount", validBody(map[string]interface{}{"amount": 0}), "missing parameters"},
		{"negative amount", validBody(map[string]interface{}{"amount": -3}), "amount must be positive"},
		{"payer with control chars", validBody(map[string]interface{}{"userPublicKey": "Ali\x01ce"}), "invalid userPublicKey"},
		{"mint with whitespace", validBody(map[string]interface{}{"craftTokenMintAddress": "Mint X"}), "invalid craftTokenMintAddress"},
		{"payer too long", validBody(map[string]interface{}{"userPublicKey": strings.Repeat("A", maxAddressLength+1)}), "invalid userPublicKey"},
		{"signature too long", validBody(map[string]interface{}{"transactionSignature": strings.Repeat("1", 129)}), "too long"},
		{"bad email", validBody(map[string]interface{}{"email": "not an email"}), "invalid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
				t.Fatal("service must not be called for invalid requests")
				return nil, nil
			}}

			w := postVerify(t, svc, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "invalid_request", resp.Code)
			assert.Contains(t, resp.Error, tt.errContains)
		})
	}
}

func TestHandleVerifyPayment_BodyTooLarge(t *testing.T) {
	svc := &fakePurchaseService{}
	body := `{"transactionSignature":"` + strings.Repeat("a", maxRequestBodySize) + `"}`

	w := postVerify(t, svc, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "request body too large")
	assert.Empty(t, svc.requests)
}

func TestHandleVerifyPayment_ServiceErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedError  string
	}{
		{
			name:           "payment rejected",
			err:            &purchase.Error{Kind: purchase.KindPaymentRejected, Reason: "recipient does not match"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "payment_rejected",
			expectedError:  "recipient does not match",
		},
		{
			name:           "duplicate",
			err:            &purchase.Error{Kind: purchase.KindDuplicateSubmission, Reason: "transaction already redeemed"},
			expectedStatus: http.StatusConflict,
			expectedCode:   "duplicate_submission",
			expectedError:  "transaction already redeemed",
		},
		{
			name:           "identity missing",
			err:            &purchase.Error{Kind: purchase.KindServiceUnavailable, Reason: "recipient wallet not properly configured"},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "service_unavailable",
			expectedError:  "recipient wallet not properly configured",
		},
		{
			name: "generation failed hides cause",
			err: &purchase.Error{
				Kind:   purchase.KindArtifactGenerationFailed,
				Reason: "artifact generation failed",
				Err:    errors.New("ipfs: connection refused to 10.0.0.3"),
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "artifact_generation_failed",
			expectedError:  "artifact generation failed",
		},
		{
			name:           "persistence failure",
			err:            &purchase.Error{Kind: purchase.KindPersistenceFailure, Reason: "could not record purchase"},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "persistence_failure",
			expectedError:  "could not record purchase",
		},
		{
			name:           "unexpected error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
				return nil, tt.err
			}}

			w := postVerify(t, svc, validBody(nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedCode, resp.Code)
			assert.Equal(t, tt.expectedError, resp.Error)
			assert.NotContains(t, w.Body.String(), "10.0.0.3")
		})
	}
}

func TestHandleListArtifacts(t *testing.T) {
	var gotOwner string
	svc := &fakePurchaseService{listFn: func(owner string) ([]artifact.Artifact, error) {
		gotOwner = owner
		return []artifact.Artifact{*issuedArtifact(owner), *issuedArtifact(owner)}, nil
	}}

	mux := http.NewServeMux()
	mux.Handle("GET /nfts/{ownerAccount}", handleListArtifacts(svc, discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/nfts/"+testPayer, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testPayer, gotOwner)

	var resp []artifactResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, testPayer, resp[0].Owner)
}

func TestHandleListArtifacts_Empty(t *testing.T) {
	svc := &fakePurchaseService{listFn: func(owner string) ([]artifact.Artifact, error) {
		return []artifact.Artifact{}, nil
	}}

	mux := http.NewServeMux()
	mux.Handle("GET /nfts/{ownerAccount}", handleListArtifacts(svc, discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/nfts/"+testPayer, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleListArtifacts_Errors(t *testing.T) {
	t.Run("invalid owner", func(t *testing.T) {
		svc := &fakePurchaseService{}
		mux := http.NewServeMux()
		mux.Handle("GET /nfts/{ownerAccount}", handleListArtifacts(svc, discardLogger()))

		req := httptest.NewRequest(http.MethodGet, "/nfts/purchases.*", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &fakePurchaseService{listFn: func(owner string) ([]artifact.Artifact, error) {
			return nil, &purchase.Error{Kind: purchase.KindPersistenceFailure, Reason: "could not load artifacts"}
		}}
		mux := http.NewServeMux()
		mux.Handle("GET /nfts/{ownerAccount}", handleListArtifacts(svc, discardLogger()))

		req := httptest.NewRequest(http.MethodGet, "/nfts/"+testPayer, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "could not load artifacts")
	})
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name           string
		db             Pinger
		expectedStatus int
		expectedBody   string
	}{
		{"no database", nil, http.StatusOK, "OK"},
		{"healthy", fakePinger{}, http.StatusOK, "OK"},
		{"database down", fakePinger{err: errors.New("conn refused")}, http.StatusServiceUnavailable, "database unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleHealth(tt.db, discardLogger()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"valid", testPayer, false},
		{"empty", "", true},
		{"too long", strings.Repeat("A", maxAddressLength+1), true},
		{"null byte", "abc\x00def", true},
		{"not base58 but well formed", "Alice", false},
		{"whitespace", "Al ice", true},
		{"subject wildcard", "purchases.>", true},
		{"path traversal", "../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddress(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, map[string]string{"a": "b"}, http.StatusCreated)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":"b"}`, w.Body.String())
}

func TestHandleVerifyPayment_AcceptsNonBase58Accounts(t *testing.T) {
	svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
		return issuedArtifact(req.Claim.PayerAccount), nil
	}}

	w := postVerify(t, svc, validBody(map[string]interface{}{
		"transactionSignature":  "sig123",
		"userPublicKey":         "Alice",
		"craftTokenMintAddress": "MintX",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "Alice", svc.requests[0].Claim.PayerAccount)
}

func TestHandleVerifyPayment_LogsRequestID(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	svc := &fakePurchaseService{purchaseFn: func(req purchase.Request) (*artifact.Artifact, error) {
		return nil, &purchase.Error{Kind: purchase.KindPersistenceFailure, Reason: "could not record purchase"}
	}}

	h := requestIDMiddleware(handleVerifyPayment(svc, testMint, logger), logger)
	req := httptest.NewRequest(http.MethodPost, "/verify-payment", strings.NewReader(validBody(nil)))
	req.Header.Set("X-Request-ID", "req-789")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "purchase failed", entry["msg"])
	assert.Equal(t, "req-789", entry["request_id"])
}
