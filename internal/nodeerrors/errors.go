// Package nodeerrors centralizes the error taxonomy shared across the
// node's subsystems: malformed input, invalid transactions/blocks, mining
// timeouts, network failures, and storage failures. Packages wrap these
// sentinels with fmt.Errorf("%w: ...") rather than defining their own
// parallel error types, so callers can use errors.Is against one shared
// vocabulary.
package nodeerrors

import "errors"

// Malformed input: a non-JSON, oversized, or truncated wire frame. The
// offending datum is rejected; state is untouched. Malformed addresses
// and keys are reported through the crypto package's own sentinels.
var ErrMalformedFrame = errors.New("malformed wire frame")

// Invalid transaction: fails structural, signature, balance, or
// double-spend checks. Rejected at the mempool boundary.
var (
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateSender     = errors.New("sender already has a pending transaction")
)

// Invalid block: fails hash, proof-of-work, linkage, or contained
// transaction checks. Rejected at the admission boundary.
var (
	ErrInvalidBlock   = errors.New("invalid block")
	ErrInvalidLinkage = errors.New("block does not link to chain tip")
	ErrShorterChain   = errors.New("candidate chain is not longer than current chain")
)

// Mining timeout: proof-of-work search did not converge within the bound.
var ErrMiningTimeout = errors.New("mining timeout")

// Network failure: connect/read/write timeout or socket error.
var (
	ErrNetworkTimeout  = errors.New("network timeout")
	ErrPeerUnreachable = errors.New("peer unreachable")
)

// Storage failure: underlying store error. Callers should treat this as
// fatal to the process if it happens mid-operation.
var ErrStorage = errors.New("storage failure")
