// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package market

import (
	"errors"
	"fmt"
	"strings"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

// Error kinds. Every failed operation returns an *Error whose Kind is one of
// these sentinels, so callers can match with errors.Is.
var (
	ErrInvalidPrice                = errors.New("invalid price")
	ErrInsufficientCollateral      = errors.New("insufficient collateral")
	ErrInsufficientPayment         = errors.New("insufficient payment")
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrNotProvider                 = errors.New("caller is not the provider")
	ErrNotSubscriber               = errors.New("caller is not the subscriber")
	ErrNotAdmin                    = errors.New("caller is not the treasury admin")
	ErrServiceInactive             = errors.New("service inactive")
	ErrSubscriptionExpired         = errors.New("subscription expired")
	ErrSubscriptionServiceMismatch = errors.New("subscription service mismatch")
	ErrQueryNotResolved            = errors.New("query not resolved")
	ErrAlreadyResolved             = errors.New("query already resolved")
	ErrCollateralNotFound          = errors.New("collateral not found")
	ErrDescriptionTooLong          = errors.New("description too long")
	ErrObjectNotFound              = errors.New("object not found")

	// caller mismatch on settlement is reported in the expired class
	ErrSubscriptionCallerMismatch = fmt.Errorf("subscription caller mismatch: %w", ErrSubscriptionExpired)
)

var kinds = []error{
	ErrInvalidPrice,
	ErrInsufficientCollateral,
	ErrInsufficientPayment,
	ErrInsufficientBalance,
	ErrNotProvider,
	ErrNotSubscriber,
	ErrNotAdmin,
	ErrServiceInactive,
	ErrSubscriptionCallerMismatch,
	ErrSubscriptionExpired,
	ErrSubscriptionServiceMismatch,
	ErrQueryNotResolved,
	ErrAlreadyResolved,
	ErrCollateralNotFound,
	ErrDescriptionTooLong,
	ErrObjectNotFound,
}

// Error carries the failure kind plus the offending values.
type Error struct {
	Kind     error
	Op       string
	Caller   ledger.AccountID
	Expected ledger.AccountID
	Required uint64
	Provided uint64
	Object   ledger.ObjectID
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	switch {
	case e.Expected != "":
		fmt.Fprintf(&b, " (caller=%s expected=%s)", e.Caller, e.Expected)
	case e.Required != 0 || e.Provided != 0:
		fmt.Fprintf(&b, " (required=%d provided=%d)", e.Required, e.Provided)
	case !e.Object.IsZero():
		fmt.Fprintf(&b, " (object=%s)", e.Object)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Kind returns the error kind of err or nil when err is not a market error.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a stable snake case name for the kind of err.
func KindName(err error) string {
	switch Kind(err) {
	case ErrInvalidPrice:
		return "invalid_price"
	case ErrInsufficientCollateral:
		return "insufficient_collateral"
	case ErrInsufficientPayment:
		return "insufficient_payment"
	case ErrInsufficientBalance:
		return "insufficient_balance"
	case ErrNotProvider:
		return "not_provider"
	case ErrNotSubscriber:
		return "not_subscriber"
	case ErrNotAdmin:
		return "not_admin"
	case ErrServiceInactive:
		return "service_inactive"
	case ErrSubscriptionCallerMismatch:
		return "subscription_caller_mismatch"
	case ErrSubscriptionExpired:
		return "subscription_expired"
	case ErrSubscriptionServiceMismatch:
		return "subscription_service_mismatch"
	case ErrQueryNotResolved:
		return "query_not_resolved"
	case ErrAlreadyResolved:
		return "already_resolved"
	case ErrCollateralNotFound:
		return "collateral_not_found"
	case ErrDescriptionTooLong:
		return "description_too_long"
	case ErrObjectNotFound:
		return "object_not_found"
	case nil:
		if err == nil {
			return "ok"
		}
	}
	return "internal"
}

func notProvider(op string, caller, provider ledger.AccountID) error {
	return &Error{Kind: ErrNotProvider, Op: op, Caller: caller, Expected: provider}
}

func amountError(kind error, op string, required, provided ledger.Money) error {
	return &Error{Kind: kind, Op: op, Required: uint64(required), Provided: uint64(provided)}
}

func NotFound(op string, id ledger.ObjectID) error {
	return &Error{Kind: ErrObjectNotFound, Op: op, Object: id}
}
