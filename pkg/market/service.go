package market

import (
	"blockwatch.cc/oracle-market/pkg/ledger"
)

// Service is a provider owned, publicly readable catalog entry.
type Service struct {
	ID                ledger.ObjectID
	Provider          ledger.AccountID
	Name              string
	ServiceType       string
	Description       string
	PricePerQuery     ledger.Money
	Collateral        ledger.Money // amount recorded at creation
	TotalQueries      uint64
	SuccessfulQueries uint64
	Active            bool
	CreatedAt         int64
	ConfigID          string // empty when unset
	DocumentationURL  string // empty when unset
	Version           uint64
}

// ValidateService checks the inputs of CreateService and CreateServiceSimple.
func ValidateService(op string, p ServiceParams, collateral ledger.Money) error {
	if p.PricePerQuery == 0 {
		return amountError(ErrInvalidPrice, op, 1, 0)
	}
	if collateral < MinCollateral {
		return amountError(ErrInsufficientCollateral, op, MinCollateral, collateral)
	}
	if len(p.Description) > MaxDescriptionLen {
		return amountError(ErrDescriptionTooLong, op, MaxDescriptionLen, ledger.Money(len(p.Description)))
	}
	return nil
}

func newService(ctx ledger.CallContext, id ledger.ObjectID, p ServiceParams, collateral ledger.Money) *Service {
	return &Service{
		ID:            id,
		Provider:      ctx.Caller,
		Name:          p.Name,
		ServiceType:   p.ServiceType,
		Description:   p.Description,
		PricePerQuery: p.PricePerQuery,
		Collateral:    collateral,
		Active:        true,
		CreatedAt:     ctx.Time,
		Version:       1,
	}
}

// CreateService publishes a service and locks the full collateral coin in
// the pool under the new service id.
func CreateService(ctx ledger.CallContext, id ledger.ObjectID, p ServiceParams, collateral *ledger.Coin, pool *CollateralPool) (*Service, error) {
	if err := ValidateService("create_service", p, collateral.Value()); err != nil {
		return nil, err
	}
	svc := newService(ctx, id, p, collateral.Value())
	pool.Deposit(id, collateral)
	return svc, nil
}

// CreateServiceSimple is the demo variant: collateral is validated and
// recorded but left in the coin for the caller to take back. It provides no
// custody guarantee and must not back production flows.
func CreateServiceSimple(ctx ledger.CallContext, id ledger.ObjectID, p ServiceParams, collateral *ledger.Coin) (*Service, error) {
	if err := ValidateService("create_service_simple", p, collateral.Value()); err != nil {
		return nil, err
	}
	return newService(ctx, id, p, collateral.Value()), nil
}

// CheckProvider fails with ErrNotProvider unless ctx.Caller owns s.
func (s *Service) CheckProvider(op string, ctx ledger.CallContext) error {
	if ctx.Caller != s.Provider {
		return notProvider(op, ctx.Caller, s.Provider)
	}
	return nil
}

func (s *Service) UpdatePrice(ctx ledger.CallContext, price ledger.Money) error {
	if err := s.CheckProvider("update_price", ctx); err != nil {
		return err
	}
	if price == 0 {
		return amountError(ErrInvalidPrice, "update_price", 1, 0)
	}
	s.PricePerQuery = price
	s.Version++
	return nil
}

func (s *Service) SetActive(ctx ledger.CallContext, active bool) error {
	if err := s.CheckProvider("set_active", ctx); err != nil {
		return err
	}
	s.Active = active
	s.Version++
	return nil
}

func (s *Service) UpdateConfigID(ctx ledger.CallContext, configID string) error {
	if err := s.CheckProvider("update_config_id", ctx); err != nil {
		return err
	}
	s.ConfigID = configID
	s.Version++
	return nil
}

func (s *Service) UpdateDocumentationURL(ctx ledger.CallContext, url string) error {
	if err := s.CheckProvider("update_documentation_url", ctx); err != nil {
		return err
	}
	s.DocumentationURL = url
	s.Version++
	return nil
}

// TopUpCollateral adds the full coin to the service's pool entry.
func (s *Service) TopUpCollateral(ctx ledger.CallContext, c *ledger.Coin, pool *CollateralPool) error {
	if err := s.CheckProvider("top_up_collateral", ctx); err != nil {
		return err
	}
	pool.Deposit(s.ID, c)
	return nil
}

// WithdrawCollateral releases amount from the pool. The returned coin is to
// be forwarded to the recipient by the caller.
func (s *Service) WithdrawCollateral(ctx ledger.CallContext, pool *CollateralPool, amount ledger.Money) (ledger.Coin, error) {
	if err := s.CheckProvider("withdraw_collateral", ctx); err != nil {
		return ledger.Coin{}, err
	}
	return pool.Withdraw(s.ID, ctx.Caller, s.Provider, amount)
}

// Read accessors used by off-chain mirrors.

func (s *Service) Price() ledger.Money { return s.PricePerQuery }

func (s *Service) IsActive() bool { return s.Active }

func (s *Service) ProviderID() ledger.AccountID { return s.Provider }

func (s *Service) Config() (string, bool) { return s.ConfigID, s.ConfigID != "" }

func (s *Service) Documentation() (string, bool) {
	return s.DocumentationURL, s.DocumentationURL != ""
}

// Clone returns a detached copy safe to hand out to readers.
func (s *Service) Clone() *Service {
	c := *s
	return &c
}
