package mempool

import "errors"

var (
	// ErrNilTransaction indicates a nil transaction was submitted
	ErrNilTransaction = errors.New("transaction cannot be nil")

	// ErrMalformedTransaction indicates a transaction with missing fields
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrDuplicateTransaction indicates the transaction is already pending
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrPoolFull indicates the pool reached its configured bound
	ErrPoolFull = errors.New("transaction pool full")
)
