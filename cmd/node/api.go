// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/echa/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"

	"blockwatch.cc/oracle-market/pkg/host"
	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
	"blockwatch.cc/oracle-market/pkg/metrics"
)

const (
	// Caller identity. A production deployment derives it from a signed
	// transaction envelope.
	headerCaller = "X-Caller"
	// Attached amount in subunits.
	headerAmount = "X-Amount"
)

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

type API struct {
	host    *host.Host
	metrics *metrics.Collector
	faucet  ledger.Money
}

func NewAPI(h *host.Host, m *metrics.Collector, faucet ledger.Money) *API {
	return &API{host: h, metrics: m, faucet: faucet}
}

func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/services", a.listServices).Methods(http.MethodGet)
	v1.HandleFunc("/services", a.createService).Methods(http.MethodPost)
	v1.HandleFunc("/services/simple", a.createServiceSimple).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}", a.getService).Methods(http.MethodGet)
	v1.HandleFunc("/services/{id}/price", a.updatePrice).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}/active", a.setActive).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}/config", a.updateConfig).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}/docs", a.updateDocs).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}/collateral", a.getCollateral).Methods(http.MethodGet)
	v1.HandleFunc("/services/{id}/collateral", a.topUp).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}/collateral/withdraw", a.withdrawCollateral).Methods(http.MethodPost)
	v1.HandleFunc("/subscriptions", a.subscribe).Methods(http.MethodPost)
	v1.HandleFunc("/subscriptions/{id}", a.getSubscription).Methods(http.MethodGet)
	v1.HandleFunc("/subscriptions/{id}/cancel", a.cancelSubscription).Methods(http.MethodPost)
	v1.HandleFunc("/queries", a.createQuery).Methods(http.MethodPost)
	v1.HandleFunc("/queries/{id}", a.getQuery).Methods(http.MethodGet)
	v1.HandleFunc("/queries/{id}/resolve", a.resolveQuery).Methods(http.MethodPost)
	v1.HandleFunc("/queries/{id}/update", a.updateQuery).Methods(http.MethodPost)
	v1.HandleFunc("/settle", a.settle).Methods(http.MethodPost)
	v1.HandleFunc("/records", a.listRecords).Methods(http.MethodGet)
	v1.HandleFunc("/records/{id}", a.getRecord).Methods(http.MethodGet)
	v1.HandleFunc("/treasury", a.getTreasury).Methods(http.MethodGet)
	v1.HandleFunc("/treasury/withdraw", a.withdrawTreasury).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}", a.getAccount).Methods(http.MethodGet)
	v1.HandleFunc("/faucet", a.faucetHandler).Methods(http.MethodPost)
	v1.HandleFunc("/events", a.listEvents).Methods(http.MethodGet)
	return r
}

// request bodies

type createServiceRequest struct {
	Name          string       `json:"name"`
	ServiceType   string       `json:"service_type"`
	Description   string       `json:"description"`
	PricePerQuery ledger.Money `json:"price_per_query"`
}

type priceRequest struct {
	Price ledger.Money `json:"price"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type configRequest struct {
	ConfigID string `json:"config_id"`
}

type docsRequest struct {
	URL string `json:"url"`
}

type withdrawRequest struct {
	Amount    ledger.Money     `json:"amount"`
	Recipient ledger.AccountID `json:"recipient"`
}

type subscribeRequest struct {
	Service ledger.ObjectID `json:"service"`
}

type createQueryRequest struct {
	QueryID     string           `json:"query_id"`
	QueryType   string           `json:"query_type"`
	QueryParams string           `json:"query_params"`
	Provider    ledger.AccountID `json:"provider"`
}

type resolveRequest struct {
	Result          string `json:"result"`
	ResultHash      string `json:"result_hash"`
	EvidenceLocator string `json:"evidence_locator"`
}

type settleRequest struct {
	Service      ledger.ObjectID `json:"service"`
	Subscription ledger.ObjectID `json:"subscription"`
	Query        ledger.ObjectID `json:"query"`
}

type faucetRequest struct {
	Account ledger.AccountID `json:"account"`
}

// query string arguments

type listServicesArgs struct {
	Provider ledger.AccountID `schema:"provider"`
}

type listRecordsArgs struct {
	Owner ledger.AccountID `schema:"owner"`
}

type listEventsArgs struct {
	Since uint64 `schema:"since"`
	Limit int    `schema:"limit"`
}

// responses

type settleResponse struct {
	QueryID    string          `json:"query_id"`
	Result     string          `json:"result"`
	ResultHash string          `json:"result_hash"`
	QueryTime  int64           `json:"query_time"`
	Record     ledger.ObjectID `json:"record"`
	Payment    ledger.Money    `json:"payment"`
}

type accountResponse struct {
	Account ledger.AccountID `json:"account"`
	Balance ledger.Money     `json:"balance"`
	Display string           `json:"display"`
}

type collateralResponse struct {
	Service ledger.ObjectID `json:"service"`
	Locked  ledger.Money    `json:"locked"`
}

type treasuryResponse struct {
	ID      ledger.ObjectID  `json:"id"`
	Admin   ledger.AccountID `json:"admin"`
	Balance ledger.Money     `json:"balance"`
	Display string           `json:"display"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func callContext(r *http.Request) (ledger.CallContext, error) {
	caller := ledger.AccountID(r.Header.Get(headerCaller))
	if caller.IsZero() {
		return ledger.CallContext{}, badRequest("missing %s header", headerCaller)
	}
	ctx := ledger.CallContext{Caller: caller}
	if s := r.Header.Get(headerAmount); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return ctx, badRequest("invalid %s header: %v", headerAmount, err)
		}
		ctx.Amount = ledger.Money(v)
	}
	return ctx, nil
}

func objectID(r *http.Request) (ledger.ObjectID, error) {
	id, err := ledger.ParseObjectID(mux.Vars(r)["id"])
	if err != nil {
		return id, badRequest("%v", err)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

func decodeArgs(r *http.Request, v any) error {
	if err := r.ParseForm(); err != nil {
		return badRequest("%v", err)
	}
	if err := decoder.Decode(v, r.Form); err != nil {
		return badRequest("%v", err)
	}
	return nil
}

// parse reads caller, object id and body as far as the target needs them.
func parse(r *http.Request, id *ledger.ObjectID, body any) (ledger.CallContext, error) {
	ctx, err := callContext(r)
	if err != nil {
		return ctx, err
	}
	if id != nil {
		if *id, err = objectID(r); err != nil {
			return ctx, err
		}
	}
	if body != nil {
		err = decodeBody(r, body)
	}
	return ctx, err
}

func statusOf(err error) int {
	switch market.Kind(err) {
	case market.ErrInvalidPrice, market.ErrInsufficientCollateral, market.ErrDescriptionTooLong:
		return http.StatusBadRequest
	case market.ErrInsufficientPayment, market.ErrInsufficientBalance:
		return http.StatusPaymentRequired
	case market.ErrNotProvider, market.ErrNotSubscriber, market.ErrNotAdmin, market.ErrSubscriptionCallerMismatch:
		return http.StatusForbidden
	case market.ErrObjectNotFound, market.ErrCollateralNotFound:
		return http.StatusNotFound
	case market.ErrServiceInactive, market.ErrSubscriptionExpired, market.ErrSubscriptionServiceMismatch,
		market.ErrQueryNotResolved, market.ErrAlreadyResolved:
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, host.ErrDemoDisabled):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		log.Error(err)
		http.Error(w, fmt.Sprintf("marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(status)
	w.Write(buf)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error(err)
	}
	kind := market.KindName(err)
	switch {
	case errors.Is(err, errBadRequest):
		kind = "bad_request"
	case errors.Is(err, host.ErrDemoDisabled):
		kind = "demo_disabled"
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) createService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	ctx, err := parse(r, nil, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	svc, err := a.host.CreateService(ctx, market.ServiceParams(req))
	respond(w, svc, err)
}

func (a *API) createServiceSimple(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	ctx, err := parse(r, nil, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	svc, err := a.host.CreateServiceSimple(ctx, market.ServiceParams(req))
	respond(w, svc, err)
}

func (a *API) listServices(w http.ResponseWriter, r *http.Request) {
	var args listServicesArgs
	if err := decodeArgs(r, &args); err != nil {
		writeError(w, err)
		return
	}
	if args.Provider.IsZero() {
		writeJSON(w, http.StatusOK, a.host.Services())
		return
	}
	writeJSON(w, http.StatusOK, a.host.ServicesByProvider(args.Provider))
}

func (a *API) getService(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	svc, err := a.host.Service(id)
	respond(w, svc, err)
}

func (a *API) updatePrice(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req priceRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.UpdatePrice(ctx, id, req.Price)
	}
	respond(w, nil, err)
}

func (a *API) setActive(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req activeRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.SetActive(ctx, id, req.Active)
	}
	respond(w, nil, err)
}

func (a *API) updateConfig(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req configRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.UpdateConfigID(ctx, id, req.ConfigID)
	}
	respond(w, nil, err)
}

func (a *API) updateDocs(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req docsRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.UpdateDocumentationURL(ctx, id, req.URL)
	}
	respond(w, nil, err)
}

func (a *API) getCollateral(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	locked, ok := a.host.CollateralOf(id)
	if !ok {
		writeError(w, &market.Error{Kind: market.ErrCollateralNotFound, Op: "get_collateral", Object: id})
		return
	}
	writeJSON(w, http.StatusOK, collateralResponse{Service: id, Locked: locked})
}

func (a *API) topUp(w http.ResponseWriter, r *http.Request) {
	var id ledger.ObjectID
	ctx, err := parse(r, &id, nil)
	if err == nil {
		err = a.host.TopUpCollateral(ctx, id)
	}
	respond(w, nil, err)
}

func (a *API) withdrawCollateral(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req withdrawRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.WithdrawCollateral(ctx, id, req.Amount, req.Recipient)
	}
	respond(w, nil, err)
}

func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	ctx, err := parse(r, nil, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	sub, err := a.host.Subscribe(ctx, req.Service)
	respond(w, sub, err)
}

func (a *API) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sub, err := a.host.Subscription(id)
	respond(w, sub, err)
}

func (a *API) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var id ledger.ObjectID
	ctx, err := parse(r, &id, nil)
	if err == nil {
		err = a.host.CancelSubscription(ctx, id)
	}
	respond(w, nil, err)
}

func (a *API) createQuery(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	ctx, err := parse(r, nil, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := a.host.CreateQuery(ctx, market.QueryParams(req))
	respond(w, q, err)
}

func (a *API) getQuery(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := a.host.Query(id)
	respond(w, q, err)
}

func (a *API) resolveQuery(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req resolveRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.ResolveQuery(ctx, id, market.Resolution(req))
	}
	respond(w, nil, err)
}

func (a *API) updateQuery(w http.ResponseWriter, r *http.Request) {
	var (
		id  ledger.ObjectID
		req resolveRequest
	)
	ctx, err := parse(r, &id, &req)
	if err == nil {
		err = a.host.UpdateQuery(ctx, id, market.Resolution(req))
	}
	respond(w, nil, err)
}

func (a *API) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	ctx, err := parse(r, nil, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	res, rec, err := a.host.QueryOracle(ctx, req.Service, req.Subscription, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settleResponse{
		QueryID:    res.QueryID,
		Result:     res.Result,
		ResultHash: res.ResultHash,
		QueryTime:  res.QueryTime,
		Record:     rec.ID,
		Payment:    rec.Payment,
	})
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request) {
	var args listRecordsArgs
	if err := decodeArgs(r, &args); err != nil {
		writeError(w, err)
		return
	}
	if args.Owner.IsZero() {
		writeError(w, badRequest("missing owner"))
		return
	}
	writeJSON(w, http.StatusOK, a.host.RecordsByOwner(args.Owner))
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.host.Record(id)
	respond(w, rec, err)
}

func (a *API) getTreasury(w http.ResponseWriter, r *http.Request) {
	s := a.host.Treasury()
	writeJSON(w, http.StatusOK, treasuryResponse{
		ID:      s.ID,
		Admin:   s.Admin,
		Balance: s.Balance,
		Display: s.Balance.Display(),
	})
}

func (a *API) withdrawTreasury(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	ctx, err := parse(r, nil, &req)
	if err == nil {
		err = a.host.WithdrawTreasury(ctx, req.Amount, req.Recipient)
	}
	respond(w, nil, err)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	acc := ledger.AccountID(mux.Vars(r)["id"])
	bal := a.host.Balance(acc)
	writeJSON(w, http.StatusOK, accountResponse{Account: acc, Balance: bal, Display: bal.Display()})
}

func (a *API) faucetHandler(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Account.IsZero() {
		writeError(w, badRequest("missing account"))
		return
	}
	if err := a.host.Faucet(req.Account, a.faucet); err != nil {
		writeError(w, err)
		return
	}
	log.Infof("Faucet sent %s to %s", a.faucet.Display(), req.Account)
	bal := a.host.Balance(req.Account)
	writeJSON(w, http.StatusOK, accountResponse{Account: req.Account, Balance: bal, Display: bal.Display()})
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	var args listEventsArgs
	if err := decodeArgs(r, &args); err != nil {
		writeError(w, err)
		return
	}
	events := a.host.Events(args.Since, args.Limit)
	if events == nil {
		events = []host.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
