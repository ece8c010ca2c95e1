// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package market

import (
	"math/bits"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

// Settlement is the outcome of a successful QueryOracle call. Payout still
// holds the provider's share and must be transferred to PayTo.
type Settlement struct {
	Record      *QueryRecord
	Result      QueryResult
	Fee         ledger.Money
	PlatformFee ledger.Money
	ProviderFee ledger.Money
	PayTo       ledger.AccountID
	Payout      ledger.Coin
}

// SplitFee returns the platform share floor(fee*PlatformFeeBps/BpsDenominator)
// and the provider share, which receives the rounding remainder. The product
// is computed in 128 bits so no fee value can overflow.
func SplitFee(fee ledger.Money) (platform, provider ledger.Money) {
	hi, lo := bits.Mul64(uint64(fee), PlatformFeeBps)
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	platform = ledger.Money(q)
	return platform, fee - platform
}

// CheckQueryOracle runs the settlement preconditions in order against a
// payment of the given value without touching any object.
func CheckQueryOracle(ctx ledger.CallContext, svc *Service, sub *Subscription, q *Query, payment ledger.Money) error {
	const op = "query_oracle"
	switch {
	case !svc.Active:
		return &Error{Kind: ErrServiceInactive, Op: op, Object: svc.ID}
	case !sub.IsValid(ctx.Time):
		return &Error{Kind: ErrSubscriptionExpired, Op: op, Object: sub.ID}
	case sub.ServiceID != svc.ID:
		return &Error{Kind: ErrSubscriptionServiceMismatch, Op: op, Object: sub.ServiceID}
	case ctx.Caller != sub.Subscriber:
		return &Error{Kind: ErrSubscriptionCallerMismatch, Op: op, Caller: ctx.Caller, Expected: sub.Subscriber}
	case payment < svc.PricePerQuery:
		return amountError(ErrInsufficientPayment, op, svc.PricePerQuery, payment)
	case !q.Resolved:
		return &Error{Kind: ErrQueryNotResolved, Op: op, Object: q.ID}
	}
	return nil
}

// QueryOracle validates access, payment and query state, then moves exactly
// svc.PricePerQuery out of payment. Any remainder stays in payment. All
// checks run before the first mutation so a failed call changes nothing.
func QueryOracle(ctx ledger.CallContext, recordID ledger.ObjectID, svc *Service, sub *Subscription, q *Query, payment *ledger.Coin, treasury *Treasury) (*Settlement, error) {
	const op = "query_oracle"
	if err := CheckQueryOracle(ctx, svc, sub, q, payment.Value()); err != nil {
		return nil, err
	}

	fee, err := payment.Split(svc.PricePerQuery)
	if err != nil {
		// unreachable, payment was checked above
		return nil, amountError(ErrInsufficientPayment, op, svc.PricePerQuery, payment.Value())
	}
	platformFee, providerFee := SplitFee(fee.Value())
	feeValue := fee.Value()
	platformCoin, _ := fee.Split(platformFee)
	treasury.Deposit(&platformCoin)

	svc.TotalQueries++
	svc.SuccessfulQueries++
	svc.Version++

	return &Settlement{
		Record: &QueryRecord{
			ID:        recordID,
			QueryID:   q.ID,
			ServiceID: svc.ID,
			Requester: sub.Subscriber,
			Payment:   feeValue,
			QueryTime: ctx.Time,
			Success:   true,
		},
		Result: QueryResult{
			QueryID:    q.QueryID,
			Result:     q.Result,
			ResultHash: q.ResultHash,
			QueryTime:  ctx.Time,
		},
		Fee:         feeValue,
		PlatformFee: platformFee,
		ProviderFee: providerFee,
		PayTo:       svc.Provider,
		Payout:      fee,
	}, nil
}
