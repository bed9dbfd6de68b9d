// FILE: errors.go
// Package main – Error taxonomy.
//
// These are sentinel errors wrapped with fmt.Errorf("%w: ...", ErrX, ...) so
// callers can classify with errors.Is while still getting a descriptive
// message, following the standard library's own wrapping idiom rather than
// introducing a custom exception hierarchy.
package main

import "errors"

var (
	// ErrConfiguration: invalid parameters. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation: order rejected by symbol filters. Never fatal.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientFunds: BUY request exceeds cash; broker scales the fill
	// instead of propagating this as an exception to the caller.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSource: transient trade source failure.
	ErrSource = errors.New("source error")
	// ErrPersistence: file I/O failure when appending a row.
	ErrPersistence = errors.New("persistence error")
	// ErrStrategy: panic/error recovered from inside a strategy's OnBar.
	ErrStrategy = errors.New("strategy error")
)
