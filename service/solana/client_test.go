package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// Responses are consumed in order; the last one repeats.
type mockRPCClient struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     int
	opts      []*rpc.GetTransactionOpts
}

type mockResponse struct {
	result *rpc.GetTransactionResult
	err    error
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = append(m.opts, opts)
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.responses[idx].result, m.responses[idx].err
}

func noBackoff(int, bool) time.Duration { return 0 }

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", nil, logger).WithBackoff(3, noBackoff)
}

func testSignature(t *testing.T) string {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	sig, err := key.Sign([]byte("craftmint"))
	require.NoError(t, err)
	return sig.String()
}

func TestGetTransaction_Success(t *testing.T) {
	ctx := context.Background()
	sig := testSignature(t)

	mock := &mockRPCClient{
		responses: []mockResponse{
			{result: &rpc.GetTransactionResult{Slot: 7, Meta: &rpc.TransactionMeta{}}},
		},
	}

	raw, err := newTestClient(mock).GetTransaction(ctx, sig)

	require.NoError(t, err)
	assert.True(t, raw.Found)
	assert.Equal(t, sig, raw.Signature)
	assert.Equal(t, uint64(7), raw.Slot)
	assert.Equal(t, 1, mock.calls)
	require.NotNil(t, mock.opts[0].MaxSupportedTransactionVersion)
}

func TestGetTransaction_NotFound(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		resp mockResponse
	}{
		{"rpc not found error", mockResponse{err: rpc.ErrNotFound}},
		{"nil result", mockResponse{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockRPCClient{responses: []mockResponse{tt.resp}}

			raw, err := newTestClient(mock).GetTransaction(ctx, testSignature(t))

			require.NoError(t, err)
			assert.False(t, raw.Found)
			assert.Equal(t, 1, mock.calls, "not found is an answer, not a retryable failure")
		})
	}
}

func TestGetTransaction_InvalidSignature(t *testing.T) {
	mock := &mockRPCClient{responses: []mockResponse{{}}}

	raw, err := newTestClient(mock).GetTransaction(context.Background(), "sig123")

	require.Error(t, err)
	assert.Nil(t, raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, 0, mock.calls)
}

func TestGetTransaction_RetriesThenSucceeds(t *testing.T) {
	mock := &mockRPCClient{
		responses: []mockResponse{
			{err: errors.New("rpc call getTransaction(): 429 Too Many Requests")},
			{err: errors.New("connection reset by peer")},
			{result: &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{}}},
		},
	}

	raw, err := newTestClient(mock).GetTransaction(context.Background(), testSignature(t))

	require.NoError(t, err)
	assert.True(t, raw.Found)
	assert.Equal(t, 3, mock.calls)
}

func TestGetTransaction_GivesUpAfterMaxAttempts(t *testing.T) {
	mock := &mockRPCClient{
		responses: []mockResponse{{err: assert.AnError}},
	}

	raw, err := newTestClient(mock).GetTransaction(context.Background(), testSignature(t))

	require.Error(t, err)
	assert.Nil(t, raw)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, mock.calls)
}

func TestGetTransaction_LegacyFallback(t *testing.T) {
	mock := &mockRPCClient{
		responses: []mockResponse{
			{err: errors.New(`json: expects '"' or 'n', but found '{'`)},
			{result: &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{}}},
		},
	}

	raw, err := newTestClient(mock).GetTransaction(context.Background(), testSignature(t))

	require.NoError(t, err)
	assert.True(t, raw.Found)
	require.Len(t, mock.opts, 2)
	assert.Nil(t, mock.opts[1].MaxSupportedTransactionVersion, "legacy retry drops the version option")
}

func TestGetTransaction_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &mockRPCClient{
		responses: []mockResponse{{err: errors.New("should not matter")}},
	}

	raw, err := newTestClient(mock).GetTransaction(ctx, testSignature(t))

	require.Error(t, err)
	assert.Nil(t, raw)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.calls)
}

func TestGetTransaction_DeadlineDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	mock := &mockRPCClient{
		responses: []mockResponse{{err: assert.AnError}},
	}
	client := newTestClient(mock).WithBackoff(3, func(int, bool) time.Duration { return time.Hour })

	start := time.Now()
	_, err := client.GetTransaction(ctx, testSignature(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDefaultBackoff(t *testing.T) {
	assert.Equal(t, time.Second, DefaultBackoff(0, false))
	assert.Equal(t, 4*time.Second, DefaultBackoff(2, false))
	assert.Equal(t, 2*time.Second, DefaultBackoff(0, true))
	assert.Equal(t, 8*time.Second, DefaultBackoff(2, true))
}
