package market

import (
	"blockwatch.cc/oracle-market/pkg/ledger"
)

// Query is a unit of oracle data resolved by its designated provider.
//
// Resolve is one-shot while Update may be repeated and also resolves an
// open query. Both are kept on purpose: feeds that refresh a value in place
// use Update, one-off answers use Resolve.
type Query struct {
	ID              ledger.ObjectID
	QueryID         string
	QueryType       string
	QueryParams     string
	Provider        ledger.AccountID
	Result          string
	ResultHash      string
	EvidenceLocator string
	Creator         ledger.AccountID
	CreatedAt       int64
	UpdatedAt       int64
	Resolved        bool
	Version         uint64
}

func NewQuery(ctx ledger.CallContext, id ledger.ObjectID, p QueryParams) *Query {
	return &Query{
		ID:          id,
		QueryID:     p.QueryID,
		QueryType:   p.QueryType,
		QueryParams: p.QueryParams,
		Provider:    p.Provider,
		Creator:     ctx.Caller,
		CreatedAt:   ctx.Time,
		UpdatedAt:   ctx.Time,
		Version:     1,
	}
}

func (q *Query) Resolve(ctx ledger.CallContext, r Resolution) error {
	if q.Resolved {
		return &Error{Kind: ErrAlreadyResolved, Op: "resolve_query", Object: q.ID}
	}
	if ctx.Caller != q.Provider {
		return notProvider("resolve_query", ctx.Caller, q.Provider)
	}
	q.apply(ctx, r)
	return nil
}

func (q *Query) Update(ctx ledger.CallContext, r Resolution) error {
	if ctx.Caller != q.Provider {
		return notProvider("update_query", ctx.Caller, q.Provider)
	}
	q.apply(ctx, r)
	return nil
}

func (q *Query) apply(ctx ledger.CallContext, r Resolution) {
	if r.Result == "" {
		r.Result = EmptyResult
	}
	q.Result = r.Result
	q.ResultHash = r.ResultHash
	q.EvidenceLocator = r.EvidenceLocator
	q.Resolved = true
	q.UpdatedAt = ctx.Time
	q.Version++
}

// Read accessors used by off-chain mirrors. Result fields report false
// until the query has been resolved.

func (q *Query) ResultValue() (string, bool) { return q.Result, q.Resolved }

func (q *Query) Hash() (string, bool) { return q.ResultHash, q.Resolved }

func (q *Query) Evidence() (string, bool) {
	return q.EvidenceLocator, q.Resolved && q.EvidenceLocator != ""
}

func (q *Query) Clone() *Query {
	c := *q
	return &c
}
