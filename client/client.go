// Package client is the HTTP client for the craftmint purchase service.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Artifact is an artifact owned by an account.
type Artifact struct {
	ArtifactID  string    `json:"artifactId"`
	ArtifactURI *string   `json:"artifactUri"`
	ImageURI    string    `json:"imageUri"`
	Owner       string    `json:"owner"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// VerifyPaymentRequest redeems a payment for an artifact. CraftTokenMintAddress
// may be empty, in which case the server's configured mint is used.
type VerifyPaymentRequest struct {
	TransactionSignature  string          `json:"transactionSignature"`
	UserPublicKey         string          `json:"userPublicKey"`
	Amount                decimal.Decimal `json:"amount"`
	CraftTokenMintAddress string          `json:"craftTokenMintAddress,omitempty"`
	Email                 string          `json:"email,omitempty"`
}

// PaymentRequest is a Solana Pay transfer request issued by the server.
type PaymentRequest struct {
	ID           string    `json:"id"`
	PayToAddress string    `json:"pay_to_address"`
	Network      string    `json:"network"`
	TokenMint    string    `json:"token_mint"`
	Amount       string    `json:"amount"`
	BaseUnits    uint64    `json:"base_units"`
	Reference    string    `json:"reference"`
	Memo         string    `json:"memo"`
	PaymentURL   string    `json:"payment_url"`
	QRCodeData   string    `json:"qr_code_data"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchaseEvent is a purchase streamed from the server.
type PurchaseEvent struct {
	TransactionReference string    `json:"transaction_reference"`
	OwnerAccount         string    `json:"owner_account"`
	ArtifactID           string    `json:"artifact_id"`
	ArtifactURI          *string   `json:"artifact_uri,omitempty"`
	ImageURI             string    `json:"image_uri"`
	IssuedAt             time.Time `json:"issued_at"`
	PurchasedAt          time.Time `json:"purchased_at"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string // e.g. "payment_rejected"; empty when the server sent none
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the craftmint service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new craftmint client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// VerifyPayment submits a payment and returns the artifact issued for it.
func (c *Client) VerifyPayment(ctx context.Context, in VerifyPaymentRequest) (*Artifact, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify-payment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var out struct {
		Success  bool      `json:"success"`
		Message  string    `json:"message"`
		Artifact *Artifact `json:"artifact"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Artifact == nil {
		return nil, fmt.Errorf("response did not include an artifact")
	}

	c.logger.Debug("payment verified", "signature", in.TransactionSignature, "artifact_id", out.Artifact.ArtifactID)
	return out.Artifact, nil
}

// ListArtifacts returns the artifacts owned by owner.
func (c *Client) ListArtifacts(ctx context.Context, owner string) ([]Artifact, error) {
	var artifacts []Artifact
	if err := c.getJSON(ctx, "/nfts/"+url.PathEscape(owner), &artifacts); err != nil {
		return nil, err
	}
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	return artifacts, nil
}

// PaymentRequest asks the server for a Solana Pay request for amount tokens.
func (c *Client) PaymentRequest(ctx context.Context, amount decimal.Decimal) (*PaymentRequest, error) {
	var pr PaymentRequest
	if err := c.getJSON(ctx, "/payment-request?amount="+url.QueryEscape(amount.String()), &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// Health returns nil when the server reports healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

// AwaitPurchase streams purchase events for owner until one satisfies match,
// the stream ends, or ctx is done. A nil match accepts the first event.
func (c *Client) AwaitPurchase(ctx context.Context, owner string, match func(*PurchaseEvent) bool) (*PurchaseEvent, error) {
	u := c.baseURL + "/stream/purchases"
	if owner != "" {
		u += "/" + url.PathEscape(owner)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; only ctx bounds it.
	streamClient := *c.httpClient
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event != "purchase" {
				continue
			}
			var pe PurchaseEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &pe); err != nil {
				c.logger.Warn("failed to parse purchase event", "error", err)
				continue
			}
			if match == nil || match(&pe) {
				return &pe, nil
			}
		case line == "":
			event = ""
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	return nil, fmt.Errorf("stream closed before a matching purchase arrived")
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
}
