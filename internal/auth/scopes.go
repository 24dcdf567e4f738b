// Package auth - scopes.go defines permission scope constants for the
// entitlement API and provides HasScope, HasAnyScope, and HasAllScopes helper
// functions for scope checking.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Access scopes
	ScopeAccessPlay Scope = "access:play" // Resolve and consume content-unit access

	// Voucher scopes
	ScopeVouchersIssue  Scope = "vouchers:issue"  // Mint new vouchers
	ScopeVouchersRedeem Scope = "vouchers:redeem" // Redeem vouchers for the authenticated owner
	ScopeVouchersAdmin  Scope = "vouchers:admin"  // List and inspect vouchers for support tooling

	// System scopes (service-key callers only)
	ScopeSystemHooks  Scope = "system:hooks"  // Deliver lifecycle events such as account-created
	ScopeGrantsRecord Scope = "grants:record" // Record confirmed purchase grants

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeAccessPlay,
		ScopeVouchersIssue,
		ScopeVouchersRedeem,
		ScopeVouchersAdmin,
		ScopeSystemHooks,
		ScopeGrantsRecord,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a principal has a required scope
// Supports wildcard admin scope
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		// Check for exact match
		if scope == requiredStr {
			return true
		}

		// Check for admin wildcard
		if scope == string(ScopeAdmin) {
			return true
		}

		// Voucher admins can do anything redeem or issue can
		if (required == ScopeVouchersRedeem || required == ScopeVouchersIssue) &&
			scope == string(ScopeVouchersAdmin) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a principal has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a principal has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns the scopes minted into an ordinary player token
func GetDefaultScopes() []string {
	return []string{
		string(ScopeAccessPlay),
		string(ScopeVouchersIssue),
		string(ScopeVouchersRedeem),
	}
}

// GetSystemScopes returns the scopes granted to service-key callers
func GetSystemScopes() []string {
	return []string{
		string(ScopeSystemHooks),
		string(ScopeGrantsRecord),
		string(ScopeVouchersAdmin),
		string(ScopeVouchersIssue),
	}
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
