// Package verify decides whether a claimed ledger transaction is a token
// transfer from a payer to the treasury. Verify always returns a Result; it
// never returns an error or panics.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/brojonat/craftmint/service/metrics"
	"github.com/brojonat/craftmint/service/solana"
	"github.com/shopspring/decimal"
)

// Code classifies an invalid verification result.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeLedgerUnavailable Code = "ledger_unavailable"
	CodeMalformed         Code = "malformed"
	CodeIndexOutOfRange   Code = "account_index_out_of_range"
	CodeNoTransfer        Code = "no_transfer"
	CodeAmountMismatch    Code = "amount_mismatch"
)

// Human-readable reasons returned to API callers.
const (
	ReasonNotFound       = "not found or failed on ledger"
	ReasonMalformed      = "malformed transaction data"
	ReasonNoTransfer     = "no transfer to recipient found"
	ReasonAmountMismatch = "transfer amount does not match claimed amount"
)

// TransferClaim is what a purchaser says they paid.
type TransferClaim struct {
	TransactionReference string
	PayerAccount         string
	ExpectedAmount       decimal.Decimal
	TokenMintAccount     string
}

// Result is the outcome of a verification.
type Result struct {
	Valid  bool
	Code   Code
	Reason string
	Err    error // underlying cause, for logging only
}

func valid() Result {
	return Result{Valid: true}
}

func invalid(code Code, reason string, err error) Result {
	return Result{Code: code, Reason: reason, Err: err}
}

// IndexError reports an instruction that references an account outside the
// transaction's account table.
type IndexError struct {
	Instruction int
	Role        string // "source", "destination" or "mint"
	Index       uint16
	TableSize   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("instruction %d: %s account index %d out of range (table has %d keys)",
		e.Instruction, e.Role, e.Index, e.TableSize)
}

// Ledger fetches raw transactions. *solana.Client satisfies it.
type Ledger interface {
	GetTransaction(ctx context.Context, signature string) (*solana.RawTransaction, error)
}

// AmountPolicy makes the claimed amount part of the match: the instruction
// payload must carry exactly ExpectedAmount in the mint's base units.
type AmountPolicy struct {
	Decimals int32
}

// Verifier checks transfer claims against the ledger.
type Verifier struct {
	ledger  Ledger
	amount  *AmountPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Verifier. If m is nil, no metrics are recorded.
func New(ledger Ledger, m *metrics.Metrics, logger *slog.Logger) *Verifier {
	return &Verifier{
		ledger:  ledger,
		logger:  logger,
		metrics: m,
	}
}

// WithAmountPolicy enables amount enforcement.
func (v *Verifier) WithAmountPolicy(p AmountPolicy) *Verifier {
	v.amount = &p
	return v
}

// Verify fetches the claimed transaction and checks that it contains a token
// transfer of claim.TokenMintAccount from claim.PayerAccount to recipient.
// recipient must come from server configuration, never from the caller.
func (v *Verifier) Verify(ctx context.Context, claim TransferClaim, recipient string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			v.logger.ErrorContext(ctx, "panic during verification",
				"transaction_reference", claim.TransactionReference,
				"panic", r,
			)
			res = invalid(CodeMalformed, ReasonMalformed, fmt.Errorf("panic: %v", r))
		}
		if v.metrics != nil {
			v.metrics.RecordVerification(string(res.Code), res.Valid, time.Since(start).Seconds())
		}
	}()

	tx, err := v.ledger.GetTransaction(ctx, claim.TransactionReference)
	if err != nil {
		code := CodeLedgerUnavailable
		if errors.Is(err, solana.ErrInvalidSignature) {
			code = CodeNotFound
		}
		v.logger.WarnContext(ctx, "ledger fetch failed",
			"transaction_reference", claim.TransactionReference,
			"code", code,
			"error", err,
		)
		return invalid(code, ReasonNotFound, err)
	}

	res = Evaluate(tx, claim, recipient, v.amount)
	if res.Valid {
		v.logger.InfoContext(ctx, "payment verified",
			"transaction_reference", claim.TransactionReference,
			"payer", claim.PayerAccount,
		)
		return res
	}

	var idxErr *IndexError
	if errors.As(res.Err, &idxErr) {
		v.logger.ErrorContext(ctx, "account index out of range",
			"transaction_reference", claim.TransactionReference,
			"instruction", idxErr.Instruction,
			"role", idxErr.Role,
			"index", idxErr.Index,
			"table_size", idxErr.TableSize,
		)
	} else {
		v.logger.InfoContext(ctx, "payment rejected",
			"transaction_reference", claim.TransactionReference,
			"code", res.Code,
			"reason", res.Reason,
		)
	}
	return res
}

// Evaluate is the pure part of verification: it decides a claim against an
// already fetched transaction. A nil policy treats the amount as advisory.
func Evaluate(tx *solana.RawTransaction, claim TransferClaim, recipient string, policy *AmountPolicy) Result {
	if tx == nil || !tx.Found {
		return invalid(CodeNotFound, ReasonNotFound, nil)
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return invalid(CodeNotFound, ReasonNotFound, errors.New(*tx.Meta.Err))
	}
	if tx.Meta == nil {
		return invalid(CodeMalformed, ReasonMalformed, errors.New("transaction meta absent"))
	}
	if tx.Message == nil {
		return invalid(CodeMalformed, ReasonMalformed, errors.New("transaction message absent"))
	}
	if tx.Message.Instructions == nil {
		return invalid(CodeMalformed, ReasonMalformed, errors.New("instruction list absent"))
	}

	msg := tx.Message
	amountMismatch := false
	for i, ins := range msg.Instructions {
		// An unresolvable program cannot be a token transfer, so it is not a
		// candidate. Only candidate account indexes fail the scan.
		program, ok := msg.AccountKey(ins.ProgramIndex)
		if !ok || !solana.IsTokenProgram(program) || len(ins.AccountIndexes) < 3 {
			continue
		}

		// Accounts are read in Transfer layout. TransferChecked orders them
		// source, mint, destination and so never matches here.
		var resolved [3]string
		for j, role := range [3]string{"source", "destination", "mint"} {
			key, ok := msg.AccountKey(ins.AccountIndexes[j])
			if !ok {
				return indexFailure(i, role, ins.AccountIndexes[j], len(msg.AccountKeys))
			}
			resolved[j] = key
		}
		source, destination, mint := resolved[0], resolved[1], resolved[2]

		if mint != claim.TokenMintAccount || source != claim.PayerAccount || destination != recipient {
			continue
		}
		if policy != nil && !policy.matches(ins.Data, claim.ExpectedAmount) {
			amountMismatch = true
			continue
		}
		return valid()
	}

	if amountMismatch {
		return invalid(CodeAmountMismatch, ReasonAmountMismatch, nil)
	}
	return invalid(CodeNoTransfer, ReasonNoTransfer, nil)
}

func indexFailure(instruction int, role string, index uint16, tableSize int) Result {
	return invalid(CodeIndexOutOfRange, ReasonMalformed, &IndexError{
		Instruction: instruction,
		Role:        role,
		Index:       index,
		TableSize:   tableSize,
	})
}

func (p *AmountPolicy) matches(data []byte, expected decimal.Decimal) bool {
	raw, err := solana.DecodeTokenTransferAmount(data)
	if err != nil {
		return false
	}
	want := expected.Shift(p.Decimals)
	if !want.Equal(want.Truncate(0)) {
		return false
	}
	got := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0)
	return got.Equal(want)
}
