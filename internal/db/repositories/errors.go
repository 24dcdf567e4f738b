// errors.go defines the sentinel errors raised by the storage layer. Services
// and handlers branch on these with errors.Is; storage driver failures are
// wrapped with %w and never matched directly.
package repositories

import "errors"

var (
	// ErrVoucherNotFound is returned when a code decodes cleanly but no
	// voucher row exists for it.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrAlreadyRedeemed is returned when a voucher has already reached its
	// terminal redeemed state. Exactly one concurrent redeemer avoids it.
	ErrAlreadyRedeemed = errors.New("voucher already redeemed")

	// ErrExpired is returned when a voucher's issuance deadline has passed.
	ErrExpired = errors.New("voucher expired")

	// ErrPermissionDenied is returned when a voucher is reserved for a
	// different owner than the one redeeming it.
	ErrPermissionDenied = errors.New("voucher reserved for another owner")

	// ErrInsufficientBalance is returned when a pass consumption cannot be
	// covered in full. Nothing is deducted.
	ErrInsufficientBalance = errors.New("insufficient pass balance")

	// ErrGrantExhausted is returned when a decrement races with another
	// consumer and finds no uses left. Callers may re-resolve and retry.
	ErrGrantExhausted = errors.New("grant has no uses remaining")
)
