package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/oracle-market/pkg/evidence"
	"blockwatch.cc/oracle-market/pkg/host"
	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
	"blockwatch.cc/oracle-market/pkg/metrics"
)

const (
	PROVIDER   = "provider.near"
	SUBSCRIBER = "user.near"
	ADMIN      = "treasury.near"
)

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func newClient(t *testing.T, demo bool) *client {
	m := metrics.NewCollector("test")
	h := host.New(host.Options{Admin: ADMIN, Demo: demo, Metrics: m})
	srv := httptest.NewServer(NewAPI(h, m, ledger.SubunitsPerUnit).Router())
	t.Cleanup(srv.Close)
	return &client{t: t, srv: srv}
}

func (c *client) do(method, path string, caller ledger.AccountID, amount ledger.Money, body, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	if caller != "" {
		req.Header.Set(headerCaller, string(caller))
	}
	if amount > 0 {
		req.Header.Set(headerAmount, strconv.FormatUint(uint64(amount), 10))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	if out != nil && resp.StatusCode >= 300 {
		if e, ok := out.(*errorResponse); ok {
			require.NoError(c.t, json.NewDecoder(resp.Body).Decode(e))
		}
	}
	return resp.StatusCode
}

func (c *client) fund(a ledger.AccountID) {
	c.t.Helper()
	require.Equal(c.t, http.StatusOK, c.do("POST", "/v1/faucet", "", 0, faucetRequest{Account: a}, nil))
}

func TestSettleOverHTTP(t *testing.T) {
	c := newClient(t, true)
	c.fund(PROVIDER)
	c.fund(SUBSCRIBER)

	var svc market.Service
	status := c.do("POST", "/v1/services", PROVIDER, market.MinCollateral, createServiceRequest{
		Name:          "ETH/USD",
		ServiceType:   "price",
		PricePerQuery: 1000,
	}, &svc)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, svc.Active)

	var q market.Query
	require.Equal(t, http.StatusOK, c.do("POST", "/v1/queries", PROVIDER, 0, createQueryRequest{QueryID: "eth-1"}, &q))
	assert.Equal(t, ledger.AccountID(PROVIDER), q.Provider)

	var sub market.Subscription
	require.Equal(t, http.StatusOK, c.do("POST", "/v1/subscriptions", SUBSCRIBER, 0, subscribeRequest{Service: svc.ID}, &sub))

	settle := settleRequest{Service: svc.ID, Subscription: sub.ID, Query: q.ID}
	var e errorResponse
	assert.Equal(t, http.StatusConflict, c.do("POST", "/v1/settle", SUBSCRIBER, 1000, settle, &e))
	assert.Equal(t, "query_not_resolved", e.Kind)

	result := `{"price":"3100"}`
	hash, err := evidence.HashResult(result)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, c.do("POST", "/v1/queries/"+q.ID.String()+"/resolve", PROVIDER, 0,
		resolveRequest{Result: result, ResultHash: hash}, nil))

	assert.Equal(t, http.StatusForbidden, c.do("POST", "/v1/settle", PROVIDER, 1000, settle, &e))
	assert.Equal(t, "subscription_caller_mismatch", e.Kind)
	assert.Equal(t, http.StatusPaymentRequired, c.do("POST", "/v1/settle", SUBSCRIBER, 999, settle, &e))

	var res settleResponse
	require.Equal(t, http.StatusOK, c.do("POST", "/v1/settle", SUBSCRIBER, 1000, settle, &res))
	assert.Equal(t, "eth-1", res.QueryID)
	assert.NoError(t, evidence.Verify(res.Result, res.ResultHash))

	var tr treasuryResponse
	require.Equal(t, http.StatusOK, c.do("GET", "/v1/treasury", "", 0, nil, &tr))
	assert.Equal(t, ledger.Money(30), tr.Balance)

	var records []market.QueryRecord
	require.Equal(t, http.StatusOK, c.do("GET", "/v1/records?owner="+SUBSCRIBER, "", 0, nil, &records))
	require.Len(t, records, 1)
	assert.Equal(t, res.Record, records[0].ID)

	var events []host.Event
	require.Equal(t, http.StatusOK, c.do("GET", "/v1/events?since=0&limit=100", "", 0, nil, &events))
	require.NotEmpty(t, events)
	assert.Equal(t, host.EventQuerySettled, events[len(events)-1].Type)

	var acc accountResponse
	require.Equal(t, http.StatusOK, c.do("GET", "/v1/accounts/"+PROVIDER, "", 0, nil, &acc))
	assert.Equal(t, ledger.Money(ledger.SubunitsPerUnit)-market.MinCollateral+970, acc.Balance)
}

func TestErrorMapping(t *testing.T) {
	c := newClient(t, false)
	var e errorResponse

	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/v1/services", "", 0, createServiceRequest{}, &e))
	assert.Equal(t, "bad_request", e.Kind)

	assert.Equal(t, http.StatusForbidden, c.do("POST", "/v1/faucet", "", 0, faucetRequest{Account: PROVIDER}, &e))
	assert.Equal(t, "demo_disabled", e.Kind)

	assert.Equal(t, http.StatusPaymentRequired, c.do("POST", "/v1/services", PROVIDER, market.MinCollateral,
		createServiceRequest{PricePerQuery: 1}, &e))
	assert.Equal(t, "insufficient_balance", e.Kind)

	missing := ledger.DeriveObjectID(ledger.TxDigest{7}, 0)
	assert.Equal(t, http.StatusNotFound, c.do("GET", "/v1/services/"+missing.String(), "", 0, nil, &e))
	assert.Equal(t, "object_not_found", e.Kind)
	assert.Equal(t, http.StatusNotFound, c.do("GET", "/v1/services/"+missing.String()+"/collateral", "", 0, nil, &e))
	assert.Equal(t, http.StatusBadRequest, c.do("GET", "/v1/services/xyz", "", 0, nil, &e))

	assert.Equal(t, http.StatusForbidden, c.do("POST", "/v1/treasury/withdraw", PROVIDER, 0, withdrawRequest{Amount: 1}, &e))
	assert.Equal(t, "not_admin", e.Kind)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, statusOf(&market.Error{Kind: market.ErrSubscriptionCallerMismatch}))
	assert.Equal(t, http.StatusConflict, statusOf(&market.Error{Kind: market.ErrSubscriptionExpired}))
	assert.Equal(t, http.StatusBadRequest, statusOf(&market.Error{Kind: market.ErrDescriptionTooLong}))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestMetricsEndpoint(t *testing.T) {
	c := newClient(t, false)
	resp, err := http.Get(c.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
