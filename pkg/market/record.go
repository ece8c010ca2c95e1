package market

import (
	"blockwatch.cc/oracle-market/pkg/ledger"
)

// QueryRecord is the immutable receipt of one successful settlement. It is
// owned by the requester.
type QueryRecord struct {
	ID        ledger.ObjectID
	QueryID   ledger.ObjectID
	ServiceID ledger.ObjectID
	Requester ledger.AccountID
	Payment   ledger.Money
	QueryTime int64
	Success   bool
}

// QueryResult is the view returned to the calling context after settlement.
type QueryResult struct {
	QueryID    string
	Result     string
	ResultHash string
	QueryTime  int64
}
