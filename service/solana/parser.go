package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// IsTokenProgram reports whether account is one of the SPL token programs.
func IsTokenProgram(account string) bool {
	return account == TokenProgramID.String() || account == Token2022ProgramID.String()
}

// rawFromResult converts an RPC GetTransactionResult into a RawTransaction.
// It never fails: anything that cannot be decoded is left nil so that callers
// see it as absent.
func rawFromResult(signature string, result *rpc.GetTransactionResult) *RawTransaction {
	raw := &RawTransaction{Signature: signature}
	if result == nil {
		return raw
	}
	raw.Found = true
	raw.Slot = result.Slot

	if result.BlockTime != nil {
		bt := result.BlockTime.Time()
		raw.BlockTime = &bt
	}

	if result.Meta != nil {
		raw.Meta = &TransactionMeta{Fee: result.Meta.Fee}
		if result.Meta.Err != nil {
			errMsg := fmt.Sprintf("transaction failed: %v", result.Meta.Err)
			raw.Meta.Err = &errMsg
		}
	}

	if result.Transaction == nil {
		return raw
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return raw
	}

	msg := &Message{
		AccountKeys: make([]string, 0, len(tx.Message.AccountKeys)),
	}
	for _, key := range tx.Message.AccountKeys {
		msg.AccountKeys = append(msg.AccountKeys, key.String())
	}
	// Versioned transactions index past the static keys into accounts
	// loaded from lookup tables.
	if result.Meta != nil {
		for _, key := range result.Meta.LoadedAddresses.Writable {
			msg.AccountKeys = append(msg.AccountKeys, key.String())
		}
		for _, key := range result.Meta.LoadedAddresses.ReadOnly {
			msg.AccountKeys = append(msg.AccountKeys, key.String())
		}
	}

	if tx.Message.Instructions != nil {
		msg.Instructions = make([]Instruction, 0, len(tx.Message.Instructions))
		for _, ci := range tx.Message.Instructions {
			msg.Instructions = append(msg.Instructions, Instruction{
				ProgramIndex:   ci.ProgramIDIndex,
				AccountIndexes: append([]uint16(nil), ci.Accounts...),
				Data:           append([]byte(nil), ci.Data...),
			})
		}
	}

	raw.Message = msg
	return raw
}

// DecodeTokenTransferAmount extracts the raw token amount (base units) from an
// SPL Token Transfer or TransferChecked instruction payload.
func DecodeTokenTransferAmount(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty instruction data")
	}

	switch data[0] {
	case TokenProgramTransferInstruction:
		// [0]     = instruction type (u8, 3 = Transfer)
		// [1..9]  = amount (u64)
		if len(data) < 9 {
			return 0, fmt.Errorf("transfer instruction data too short")
		}
		return binary.LittleEndian.Uint64(data[1:9]), nil

	case TokenProgramTransferCheckedInstruction:
		// [0]      = instruction type (u8, 12 = TransferChecked)
		// [1..9]   = amount (u64)
		// [9]      = decimals (u8)
		if len(data) < 10 {
			return 0, fmt.Errorf("transferChecked instruction data too short")
		}
		return binary.LittleEndian.Uint64(data[1:9]), nil

	default:
		return 0, fmt.Errorf("unknown token instruction type: %d", data[0])
	}
}
