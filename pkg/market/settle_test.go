// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package market

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

type fixture struct {
	svc      *Service
	pool     *CollateralPool
	sub      *Subscription
	query    *Query
	treasury *Treasury
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	svc, pool := setupService(t)
	sub, err := Subscribe(callCtx(SUBSCRIBER, 0, T0), newID(), svc)
	require.NoError(t, err)
	q := NewQuery(callCtx(PROVIDER, 0, T0), newID(), QueryParams{
		QueryID:     "btc-usd-1",
		QueryType:   "price",
		QueryParams: `{"pair":"BTC/USD"}`,
		Provider:    PROVIDER,
	})
	require.NoError(t, q.Resolve(callCtx(PROVIDER, 0, T0+1), Resolution{
		Result:          `{"price":50000}`,
		ResultHash:      "bafkrei-result",
		EvidenceLocator: "https://walrus.example/blob/1",
	}))
	return &fixture{
		svc:      svc,
		pool:     pool,
		sub:      sub,
		query:    q,
		treasury: NewTreasury(newID(), ADMIN),
	}
}

func (f *fixture) settle(caller ledger.AccountID, pay *ledger.Coin, now int64) (*Settlement, error) {
	return QueryOracle(callCtx(caller, pay.Value(), now), newID(), f.svc, f.sub, f.query, pay, f.treasury)
}

func TestSplitFee(t *testing.T) {
	for _, fee := range []ledger.Money{0, 1, 33, 34, 999, 1000, 1_000_000, 123_456_789, math.MaxUint64} {
		platform, provider := SplitFee(fee)
		assert.Equal(t, fee, platform+provider, "conserved for %d", fee)
		// floor(fee*300/10000) without overflow
		want := fee/BpsDenominator*PlatformFeeBps + fee%BpsDenominator*PlatformFeeBps/BpsDenominator
		assert.Equal(t, want, platform, "platform share for %d", fee)
	}
	platform, provider := SplitFee(1_000_000)
	assert.Equal(t, ledger.Money(30_000), platform)
	assert.Equal(t, ledger.Money(970_000), provider)

	platform, provider = SplitFee(33)
	assert.Zero(t, platform, "rounding favours the provider")
	assert.Equal(t, ledger.Money(33), provider)
}

func TestSettleScenario(t *testing.T) {
	f := setupFixture(t)
	pay := coin(1000)
	s, err := f.settle(SUBSCRIBER, pay, T0+2)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), f.svc.TotalQueries)
	assert.Equal(t, uint64(1), f.svc.SuccessfulQueries)
	assert.Equal(t, ledger.Money(30), f.treasury.Balance(), "platform fee")
	assert.Equal(t, ledger.Money(970), s.Payout.Value(), "provider payout")
	assert.Equal(t, PROVIDER, s.PayTo)
	assert.Zero(t, pay.Value(), "payment consumed")

	assert.Equal(t, ledger.Money(1000), s.Record.Payment)
	assert.True(t, s.Record.Success)
	assert.Equal(t, SUBSCRIBER, s.Record.Requester)
	assert.Equal(t, f.query.ID, s.Record.QueryID)
	assert.Equal(t, f.svc.ID, s.Record.ServiceID)
	assert.Equal(t, T0+2, s.Record.QueryTime)

	assert.Equal(t, "btc-usd-1", s.Result.QueryID)
	assert.Equal(t, `{"price":50000}`, s.Result.Result)
	assert.Equal(t, "bafkrei-result", s.Result.ResultHash)
	assert.Equal(t, T0+2, s.Result.QueryTime)
}

func TestSettleKeepsRemainder(t *testing.T) {
	f := setupFixture(t)
	pay := coin(1500)
	s, err := f.settle(SUBSCRIBER, pay, T0+2)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(1000), s.Fee)
	assert.Equal(t, ledger.Money(500), pay.Value(), "remainder stays with caller")
}

func TestSubscriptionWindow(t *testing.T) {
	f := setupFixture(t)
	end := T0 + 2_592_000_000
	assert.Equal(t, end, f.sub.EndTime)
	assert.True(t, f.sub.IsValid(T0))
	assert.True(t, f.sub.IsValid(end), "end time is inclusive")
	assert.False(t, f.sub.IsValid(end+1))

	_, err := f.settle(SUBSCRIBER, coin(1000), end)
	assert.NoError(t, err)
	_, err = f.settle(SUBSCRIBER, coin(1000), end+1)
	assert.ErrorIs(t, err, ErrSubscriptionExpired)
}

func TestSettleCheckOrder(t *testing.T) {
	// each case breaks one more precondition than the previous one; the
	// reported error is always the first failing check
	cases := []struct {
		name  string
		setup func(f *fixture) (ledger.AccountID, ledger.Money, int64)
		want  error
	}{
		{"not resolved", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			f.query = NewQuery(callCtx(PROVIDER, 0, T0), newID(), QueryParams{QueryID: "q", Provider: PROVIDER})
			return SUBSCRIBER, 1000, T0 + 2
		}, ErrQueryNotResolved},
		{"underpaid", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			f.query = NewQuery(callCtx(PROVIDER, 0, T0), newID(), QueryParams{QueryID: "q", Provider: PROVIDER})
			return SUBSCRIBER, 999, T0 + 2
		}, ErrInsufficientPayment},
		{"wrong caller", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			return STRANGER, 1, T0 + 2
		}, ErrSubscriptionCallerMismatch},
		{"wrong service", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			f.sub.ServiceID = newID()
			return STRANGER, 1, T0 + 2
		}, ErrSubscriptionServiceMismatch},
		{"expired", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			f.sub.ServiceID = newID()
			return STRANGER, 1, f.sub.EndTime + 1
		}, ErrSubscriptionExpired},
		{"cancelled", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			f.sub.Active = false
			return STRANGER, 1, T0 + 2
		}, ErrSubscriptionExpired},
		{"inactive", func(f *fixture) (ledger.AccountID, ledger.Money, int64) {
			f.sub.Active = false
			f.svc.Active = false
			return STRANGER, 1, T0 + 2
		}, ErrServiceInactive},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := setupFixture(t)
			caller, amount, now := c.setup(f)
			svc, sub, q := *f.svc, *f.sub, *f.query
			pay := coin(amount)
			s, err := f.settle(caller, pay, now)
			assert.Nil(t, s)
			require.Error(t, err)
			assert.Equal(t, c.want, Kind(err), "kind of %v", err)
			assert.Equal(t, svc, *f.svc, "service untouched")
			assert.Equal(t, sub, *f.sub, "subscription untouched")
			assert.Equal(t, q, *f.query, "query untouched")
			assert.Equal(t, amount, pay.Value(), "payment untouched")
			assert.Zero(t, f.treasury.Balance(), "treasury untouched")
		})
	}
}

func TestCallerMismatchIsExpiredClass(t *testing.T) {
	f := setupFixture(t)
	_, err := f.settle(STRANGER, coin(1000), T0+2)
	assert.ErrorIs(t, err, ErrSubscriptionCallerMismatch)
	assert.ErrorIs(t, err, ErrSubscriptionExpired)
	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, STRANGER, merr.Caller)
	assert.Equal(t, SUBSCRIBER, merr.Expected)
	assert.Equal(t, "subscription_caller_mismatch", KindName(err))
}

func TestInsufficientPaymentValues(t *testing.T) {
	f := setupFixture(t)
	_, err := f.settle(SUBSCRIBER, coin(10), T0+2)
	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, uint64(1000), merr.Required)
	assert.Equal(t, uint64(10), merr.Provided)
	assert.Contains(t, err.Error(), "required=1000 provided=10")
}

func TestCounterMonotonicity(t *testing.T) {
	f := setupFixture(t)
	var ok int
	for i := 0; i < 20; i++ {
		pay := ledger.Money(1000)
		if i%3 == 0 {
			pay = 1
		}
		if _, err := f.settle(SUBSCRIBER, coin(pay), T0+int64(i)); err == nil {
			ok++
		}
	}
	assert.Equal(t, 13, ok)
	assert.Equal(t, uint64(ok), f.svc.TotalQueries)
	assert.Equal(t, uint64(ok), f.svc.SuccessfulQueries)
	assert.Equal(t, ledger.Money(30*ok), f.treasury.Balance())
}

func TestResolveOnce(t *testing.T) {
	q := NewQuery(callCtx(STRANGER, 0, T0), newID(), QueryParams{QueryID: "q", QueryType: "price", Provider: PROVIDER})
	assert.Equal(t, STRANGER, q.Creator, "created on behalf of the provider")
	_, ok := q.ResultValue()
	assert.False(t, ok, "no result before resolution")

	before := *q
	assert.ErrorIs(t, q.Resolve(callCtx(STRANGER, 0, T0+1), Resolution{Result: "x"}), ErrNotProvider)
	assert.Equal(t, before, *q, "unchanged after rejected resolve")

	require.NoError(t, q.Resolve(callCtx(PROVIDER, 0, T0+1), Resolution{}))
	res, ok := q.ResultValue()
	assert.True(t, ok)
	assert.Equal(t, EmptyResult, res, "empty result normalised")
	hash, ok := q.Hash()
	assert.True(t, ok)
	assert.Equal(t, "", hash, "empty hash stays empty")
	assert.Equal(t, T0+1, q.UpdatedAt)

	err := q.Resolve(callCtx(PROVIDER, 0, T0+2), Resolution{Result: "y"})
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, EmptyResult, q.Result)

	// resolved guard runs before the provider check
	assert.ErrorIs(t, q.Resolve(callCtx(STRANGER, 0, T0+2), Resolution{}), ErrAlreadyResolved)
}

func TestUpdateRepeatable(t *testing.T) {
	q := NewQuery(callCtx(PROVIDER, 0, T0), newID(), QueryParams{QueryID: "q", Provider: PROVIDER})
	require.NoError(t, q.Update(callCtx(PROVIDER, 0, T0+1), Resolution{Result: "1"}), "update resolves an open query")
	assert.True(t, q.Resolved)
	for i := 2; i < 6; i++ {
		require.NoError(t, q.Update(callCtx(PROVIDER, 0, T0+int64(i)), Resolution{
			Result:          "v",
			ResultHash:      "h",
			EvidenceLocator: "https://walrus.example/blob/2",
		}))
		assert.True(t, q.Resolved, "stays resolved")
	}
	loc, ok := q.Evidence()
	assert.True(t, ok)
	assert.Equal(t, "https://walrus.example/blob/2", loc)
	assert.Equal(t, T0+5, q.UpdatedAt)
	assert.ErrorIs(t, q.Update(callCtx(STRANGER, 0, T0+9), Resolution{}), ErrNotProvider)
}

func TestSubscribeAndCancel(t *testing.T) {
	svc, _ := setupService(t)
	sub, err := Subscribe(callCtx(SUBSCRIBER, 0, T0), newID(), svc)
	require.NoError(t, err)
	assert.Equal(t, svc.ID, sub.ServiceID)
	assert.Equal(t, SUBSCRIBER, sub.Subscriber)

	before := *sub
	assert.ErrorIs(t, sub.Cancel(callCtx(STRANGER, 0, T0+1)), ErrNotSubscriber)
	assert.Equal(t, before, *sub)

	require.NoError(t, sub.Cancel(callCtx(SUBSCRIBER, 0, T0+1)))
	assert.False(t, sub.Active)
	assert.False(t, sub.IsValid(T0+2))
	v := sub.Version
	require.NoError(t, sub.Cancel(callCtx(SUBSCRIBER, 0, T0+2)), "cancel is idempotent")
	assert.Equal(t, v, sub.Version)

	require.NoError(t, svc.SetActive(callCtx(PROVIDER, 0, T0), false))
	_, err = Subscribe(callCtx(SUBSCRIBER, 0, T0), newID(), svc)
	assert.ErrorIs(t, err, ErrServiceInactive)
}
