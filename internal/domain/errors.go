package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Auction errors
var (
	// ErrAuctionNotFound is returned when no auction matches the given criteria.
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrAuctionNotActive is returned when a bid is placed on an auction whose
	// status is not StatusActive.
	ErrAuctionNotActive = errors.New("auction is not active")

	// ErrAuctionEnded is returned when a bid arrives at or after the auction's
	// end time, or when activating an auction whose end time has already passed.
	ErrAuctionEnded = errors.New("auction has ended")

	// ErrAuctionNotEnded is returned when a settlement is requested before the
	// auction's end time.
	ErrAuctionNotEnded = errors.New("auction has not ended yet")

	// ErrAuctionNotPending is returned when activating an auction that has
	// already left StatusPending.
	ErrAuctionNotPending = errors.New("auction is not pending")

	// ErrAuctionHasBids is returned when cancelling an auction that has at
	// least one accepted bid.
	ErrAuctionHasBids = errors.New("cannot cancel an auction with bids")

	// ErrAuctionConflict is returned when an atomic auction update observes a
	// concurrent mutation and refuses to apply. Callers may retry.
	ErrAuctionConflict = errors.New("auction was modified concurrently")

	// ErrNotAuctionSeller is returned when a seller-only operation is invoked
	// by someone other than the auction's seller.
	ErrNotAuctionSeller = errors.New("only the seller may perform this action")
)

// Bid errors
var (
	// ErrSelfBid is returned when a seller bids on their own auction.
	ErrSelfBid = errors.New("sellers cannot bid on their own auction")

	// ErrBidTooLow is returned when a bid amount is below the minimum
	// acceptable amount. Use errors.As with *BidTooLowError to recover the
	// exact minimum.
	ErrBidTooLow = errors.New("bid amount is below the minimum acceptable bid")

	// ErrBidAmountInvalid is returned when a bid amount is zero, negative, or
	// unparsable.
	ErrBidAmountInvalid = errors.New("bid amount must be a positive number")

	// ErrBidNotFound is returned when no bid matches the given criteria.
	ErrBidNotFound = errors.New("bid not found")
)

// Category errors
var (
	// ErrCategoryNotFound is returned when no category matches the given id.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryNameTaken is returned on creation when the name already exists.
	ErrCategoryNameTaken = errors.New("category name is already taken")
)

// User errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned on registration when the email already exists.
	ErrEmailTaken = errors.New("email address is already registered")

	// ErrUsernameTaken is returned on registration when the username already exists.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrInvalidCredentials is returned when login credentials are wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserSuspended is returned when a suspended user attempts to log in or
	// refresh a session.
	ErrUserSuspended = errors.New("user account is suspended")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT or refresh token has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed, its signature
	// does not match, or it is unknown to the server.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrTokenReused is returned when an already-rotated refresh token is
	// presented again. All of the owner's refresh tokens are revoked when this
	// happens.
	ErrTokenReused = errors.New("refresh token has already been used")
)

// Input validation
var (
	// ErrValidation is the base error for malformed create/update input.
	// Wrap it with context: fmt.Errorf("%w: title is required", ErrValidation).
	ErrValidation = errors.New("invalid input")
)

// Transient errors
var (
	// ErrServerBusy is returned when the per-auction lock could not be acquired
	// within the wait budget. The request had no effect and may be retried.
	ErrServerBusy = errors.New("server busy, please retry")
)

// ──────────────────────────────────────────────────────────────────────────────
// Structured errors
// ──────────────────────────────────────────────────────────────────────────────

// BidTooLowError reports a rejected bid together with the minimum amount the
// next bid must reach. It matches ErrBidTooLow under errors.Is.
type BidTooLowError struct {
	MinRequired decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid amount is below the minimum acceptable bid of %s", e.MinRequired.StringFixed(2))
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrAuctionNotFound,
	ErrBidNotFound,
	ErrCategoryNotFound,
	ErrUserNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values directly
// when you need to translate domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// duplicate registration or a concurrent auction mutation).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrEmailTaken,
		ErrUsernameTaken,
		ErrCategoryNameTaken,
		ErrAuctionConflict,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrTokenReused,
		ErrInvalidCredentials,
		ErrUserSuspended,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsBusinessRule returns true for violations of auction rules that map to a
// plain 400 with the sentinel's message. These are expected outcomes of normal
// operation, not faults.
func IsBusinessRule(err error) bool {
	ruleErrors := []error{
		ErrAuctionNotActive,
		ErrAuctionEnded,
		ErrAuctionNotEnded,
		ErrAuctionNotPending,
		ErrAuctionHasBids,
		ErrNotAuctionSeller,
		ErrSelfBid,
		ErrBidTooLow,
		ErrBidAmountInvalid,
		ErrValidation,
	}
	for _, target := range ruleErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient returns true for errors where the operation had no effect and
// the caller is expected to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServerBusy)
}
