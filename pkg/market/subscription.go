package market

import (
	"blockwatch.cc/oracle-market/pkg/ledger"
)

// Subscription is a time-boxed access grant from a subscriber to one
// service. Renewal means creating a new subscription.
type Subscription struct {
	ID         ledger.ObjectID
	Subscriber ledger.AccountID
	ServiceID  ledger.ObjectID
	StartTime  int64
	EndTime    int64
	Active     bool
	CreatedAt  int64
	Version    uint64
}

// Subscribe grants ctx.Caller access to svc for SubscriptionDuration.
func Subscribe(ctx ledger.CallContext, id ledger.ObjectID, svc *Service) (*Subscription, error) {
	if !svc.Active {
		return nil, &Error{Kind: ErrServiceInactive, Op: "subscribe", Object: svc.ID}
	}
	return &Subscription{
		ID:         id,
		Subscriber: ctx.Caller,
		ServiceID:  svc.ID,
		StartTime:  ctx.Time,
		EndTime:    ctx.Time + SubscriptionDuration,
		Active:     true,
		CreatedAt:  ctx.Time,
		Version:    1,
	}, nil
}

// IsValid reports whether the subscription grants access at time now.
func (s *Subscription) IsValid(now int64) bool {
	return s.Active && now <= s.EndTime
}

// Cancel deactivates the subscription. Cancelling twice is a no-op.
func (s *Subscription) Cancel(ctx ledger.CallContext) error {
	if ctx.Caller != s.Subscriber {
		return &Error{Kind: ErrNotSubscriber, Op: "cancel_subscription", Caller: ctx.Caller, Expected: s.Subscriber}
	}
	if !s.Active {
		return nil
	}
	s.Active = false
	s.Version++
	return nil
}

func (s *Subscription) Clone() *Subscription {
	c := *s
	return &c
}
