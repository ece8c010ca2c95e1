package market

import (
	"blockwatch.cc/oracle-market/pkg/ledger"
)

const (
	MinCollateral        ledger.Money = 10_000_000
	PlatformFeeBps                    = 300
	BpsDenominator                    = 10_000
	SubscriptionDuration int64        = 30 * 24 * 60 * 60 * 1000 // ms
	MaxDescriptionLen                 = 2048

	// result payload stored for a resolution without data
	EmptyResult = "{}"
)

type ServiceParams struct {
	Name          string
	ServiceType   string
	Description   string
	PricePerQuery ledger.Money
}

type QueryParams struct {
	QueryID     string
	QueryType   string
	QueryParams string
	Provider    ledger.AccountID
}

type Resolution struct {
	Result          string
	ResultHash      string
	EvidenceLocator string
}

// Marketplace lists the transactions a host exposes to callers. Each call is
// executed atomically on behalf of ctx.Caller; ctx.Amount is the attached
// payment that is drawn from the caller and refunded when unused.
type Marketplace interface {
	// Publishes a new service and locks ctx.Amount as collateral
	// Called by: provider
	CreateService(ctx ledger.CallContext, p ServiceParams) (*Service, error)

	// Demo variant that returns the collateral right away
	// Called by: provider (demo / tests only)
	CreateServiceSimple(ctx ledger.CallContext, p ServiceParams) (*Service, error)

	// Called by: provider
	UpdatePrice(ctx ledger.CallContext, service ledger.ObjectID, price ledger.Money) error
	SetActive(ctx ledger.CallContext, service ledger.ObjectID, active bool) error
	UpdateConfigID(ctx ledger.CallContext, service ledger.ObjectID, configID string) error
	UpdateDocumentationURL(ctx ledger.CallContext, service ledger.ObjectID, url string) error

	// Adds ctx.Amount to the locked collateral of a service
	// Called by: provider
	TopUpCollateral(ctx ledger.CallContext, service ledger.ObjectID) error

	// Releases locked collateral to recipient
	// Called by: provider
	WithdrawCollateral(ctx ledger.CallContext, service ledger.ObjectID, amount ledger.Money, recipient ledger.AccountID) error

	// Called by: subscriber
	Subscribe(ctx ledger.CallContext, service ledger.ObjectID) (*Subscription, error)
	CancelSubscription(ctx ledger.CallContext, sub ledger.ObjectID) error

	// Opens a query that only p.Provider may resolve
	// Called by: anyone, usually the provider
	CreateQuery(ctx ledger.CallContext, p QueryParams) (*Query, error)

	// Called by: query provider
	ResolveQuery(ctx ledger.CallContext, query ledger.ObjectID, r Resolution) error
	UpdateQuery(ctx ledger.CallContext, query ledger.ObjectID, r Resolution) error

	// Settles one query against a subscription, paying with ctx.Amount
	// Called by: subscriber
	QueryOracle(ctx ledger.CallContext, service, sub, query ledger.ObjectID) (*QueryResult, *QueryRecord, error)

	// Moves accumulated platform fees to recipient
	// Called by: treasury admin
	WithdrawTreasury(ctx ledger.CallContext, amount ledger.Money, recipient ledger.AccountID) error
}
