package solana

import (
	"errors"
	"time"
)

var (
	// ErrInvalidSignature is returned when a transaction reference is not a
	// base58-encoded 64-byte signature. Nothing is sent to the RPC node.
	ErrInvalidSignature = errors.New("invalid transaction signature")
)

// RawTransaction is a transaction as returned by the ledger, reduced to the
// fields payment verification needs. This is our domain model, independent of
// the RPC response format.
//
// Absent data is kept absent: a nil Meta means the execution status is
// unknown, a nil Message means the body could not be obtained or decoded, and
// a nil Instructions slice means the instruction list was missing. None of
// these may be read as success.
type RawTransaction struct {
	Signature string
	Found     bool
	Slot      uint64
	BlockTime *time.Time
	Meta      *TransactionMeta
	Message   *Message
}

// TransactionMeta is the execution status reported by the ledger.
type TransactionMeta struct {
	Err *string // nil if the transaction succeeded
	Fee uint64
}

// Message is the decoded transaction message.
type Message struct {
	// AccountKeys is the full account table instructions index into: the
	// static keys followed by keys loaded from address lookup tables
	// (writable first, then read-only).
	AccountKeys  []string
	Instructions []Instruction
}

// Instruction is one compiled instruction. Program and accounts are indexes
// into Message.AccountKeys and are not guaranteed to be in range.
type Instruction struct {
	ProgramIndex   uint16
	AccountIndexes []uint16
	Data           []byte
}

// AccountKey returns the account at index, or false if index is out of range.
func (m *Message) AccountKey(index uint16) (string, bool) {
	if m == nil || int(index) >= len(m.AccountKeys) {
		return "", false
	}
	return m.AccountKeys[index], true
}
