// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/echa/log"

	"blockwatch.cc/oracle-market/pkg/config"
	"blockwatch.cc/oracle-market/pkg/evidence"
	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

// Call sends body as JSON on behalf of caller with amount attached and
// decodes the response into out.
func (c *Client) Call(method, path string, caller ledger.AccountID, amount ledger.Money, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller", string(caller))
	}
	if amount > 0 {
		req.Header.Set("X-Amount", strconv.FormatUint(uint64(amount), 10))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type account struct {
	Account ledger.AccountID `json:"account"`
	Balance ledger.Money     `json:"balance"`
}

type settlement struct {
	QueryID    string          `json:"query_id"`
	Result     string          `json:"result"`
	ResultHash string          `json:"result_hash"`
	QueryTime  int64           `json:"query_time"`
	Record     ledger.ObjectID `json:"record"`
	Payment    ledger.Money    `json:"payment"`
}

type treasury struct {
	Balance ledger.Money `json:"balance"`
}

func run() error {
	cfg, err := config.LoadSim(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return nil
		}
		return err
	}
	log.SetLevel(cfg.LogLevel)
	return Simulate(NewClient(cfg.Node), cfg)
}

// resolution builds the resolve request for result. The evidence blob is
// addressed by the same content id that serves as the result hash.
func resolution(blobs, result string) (map[string]string, error) {
	c, err := evidence.ResultCID([]byte(result))
	if err != nil {
		return nil, err
	}
	loc, err := evidence.BlobLocator(blobs, c)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"result":           result,
		"result_hash":      c.String(),
		"evidence_locator": loc,
	}, nil
}

// Simulate runs one full marketplace round trip: fund, publish, resolve,
// subscribe, settle and verify.
func Simulate(c *Client, cfg *config.Sim) error {
	for _, a := range []ledger.AccountID{cfg.Provider, cfg.User} {
		if err := c.Call("POST", "/v1/faucet", "", 0, map[string]ledger.AccountID{"account": a}, nil); err != nil {
			return fmt.Errorf("faucet: %w", err)
		}
	}

	var svc market.Service
	err := c.Call("POST", "/v1/services", cfg.Provider, market.MinCollateral, map[string]any{
		"name":            "BTC/USD",
		"service_type":    "price",
		"description":     "simulated price feed",
		"price_per_query": cfg.Price,
	}, &svc)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	log.Infof("Service %s price=%s collateral=%s", svc.ID, svc.PricePerQuery.Display(), svc.Collateral.Display())

	// deterministic query label from the query inputs
	params := `{"pair":"BTC/USD"}`
	label, err := evidence.QueryCID(svc.ID.String(), "price", params)
	if err != nil {
		return err
	}
	var q market.Query
	err = c.Call("POST", "/v1/queries", cfg.Provider, 0, map[string]any{
		"query_id":     label,
		"query_type":   "price",
		"query_params": params,
	}, &q)
	if err != nil {
		return fmt.Errorf("create query: %w", err)
	}
	log.Infof("Using query cid %s", label)

	result := fmt.Sprintf(`{"pair":"BTC/USD","price":"64000.12","time":%d}`, time.Now().Unix())
	body, err := resolution(cfg.BlobStore, result)
	if err != nil {
		return err
	}
	log.Infof("Evidence at %s", body["evidence_locator"])
	err = c.Call("POST", "/v1/queries/"+q.ID.String()+"/resolve", cfg.Provider, 0, body, nil)
	if err != nil {
		return fmt.Errorf("resolve query: %w", err)
	}

	var sub market.Subscription
	if err := c.Call("POST", "/v1/subscriptions", cfg.User, 0, map[string]any{"service": svc.ID}, &sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Infof("Subscription %s valid until %s", sub.ID, time.UnixMilli(sub.EndTime).UTC().Format(time.RFC3339))

	var res settlement
	err = c.Call("POST", "/v1/settle", cfg.User, cfg.Price, map[string]any{
		"service":      svc.ID,
		"subscription": sub.ID,
		"query":        q.ID,
	}, &res)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	if err := evidence.Verify(res.Result, res.ResultHash); err != nil {
		return err
	}
	log.Infof("Settled record %s paid=%s result=%s", res.Record, res.Payment.Display(), res.Result)

	var prov, user account
	var tr treasury
	if err := c.Call("GET", "/v1/accounts/"+string(cfg.Provider), "", 0, nil, &prov); err != nil {
		return err
	}
	if err := c.Call("GET", "/v1/accounts/"+string(cfg.User), "", 0, nil, &user); err != nil {
		return err
	}
	if err := c.Call("GET", "/v1/treasury", "", 0, nil, &tr); err != nil {
		return err
	}
	platform, provider := market.SplitFee(res.Payment)
	log.Infof("Fee split platform=%s provider=%s", platform.Display(), provider.Display())
	log.Infof("Balances provider=%s user=%s treasury=%s", prov.Balance.Display(), user.Balance.Display(), tr.Balance.Display())
	return nil
}
