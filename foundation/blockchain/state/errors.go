package state

import (
	"errors"
	"fmt"
)

// ErrorKind tags every rejection the validator can produce so callers can
// react without parsing messages. The zero value means the error carries no
// kind.
type ErrorKind int

// The set of validation failures.
const (
	MissingParent ErrorKind = iota + 1
	BadPoW
	BadMerkleRoot
	BadHeaderEncoding
	OversizeBlock
	BadSignature
	DoubleSpend
	UnknownInput
	ImmatureCoinbase
	FeeTooLow
	ValueOverflow
	BadCoinbaseReward
	DifficultyMismatch
	TimestampOutOfRange
	DuplicateBlock
	DuplicateTx
	StorageFailure
)

var kindNames = map[ErrorKind]string{
	MissingParent:       "missing_parent",
	BadPoW:              "bad_pow",
	BadMerkleRoot:       "bad_merkle_root",
	BadHeaderEncoding:   "bad_header_encoding",
	OversizeBlock:       "oversize_block",
	BadSignature:        "bad_signature",
	DoubleSpend:         "double_spend",
	UnknownInput:        "unknown_input",
	ImmatureCoinbase:    "immature_coinbase",
	FeeTooLow:           "fee_too_low",
	ValueOverflow:       "value_overflow",
	BadCoinbaseReward:   "bad_coinbase_reward",
	DifficultyMismatch:  "difficulty_mismatch",
	TimestampOutOfRange: "timestamp_out_of_range",
	DuplicateBlock:      "duplicate_block",
	DuplicateTx:         "duplicate_tx",
	StorageFailure:      "storage_failure",
}

// String returns the machine readable tag for the kind.
func (k ErrorKind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return "unknown"
}

// Strike reports whether a peer delivering a block or transaction that
// fails with this kind should be penalized. Duplicates and a locally
// missing parent are not the peer's fault, and storage failures are ours.
func (k ErrorKind) Strike() bool {
	switch k {
	case MissingParent, ImmatureCoinbase, FeeTooLow, ValueOverflow,
		BadCoinbaseReward, DuplicateBlock, DuplicateTx, StorageFailure:
		return false
	}
	return true
}

// Fatal reports whether the node must halt on this kind.
func (k ErrorKind) Fatal() bool {
	return k == StorageFailure
}

// =============================================================================

// ChainError is a validation failure with its machine readable kind.
type ChainError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ChainError) Unwrap() error {
	return e.Err
}

// errFor constructs a ChainError with a formatted message.
func errFor(kind ErrorKind, format string, args ...any) error {
	return &ChainError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error. It returns zero when the error
// carries no kind.
func KindOf(err error) ErrorKind {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
