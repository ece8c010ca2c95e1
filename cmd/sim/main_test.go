package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/oracle-market/pkg/evidence"
	"blockwatch.cc/oracle-market/pkg/ledger"
)

func TestClientCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "alice.near", r.Header.Get("X-Caller"))
			assert.Equal(t, "1000", r.Header.Get("X-Amount"))
			json.NewEncoder(w).Encode(account{Account: "alice.near", Balance: 5})
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, `{"kind":"not_admin"}`, http.StatusForbidden)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	var acc account
	require.NoError(t, c.Call("POST", "/ok", "alice.near", 1000, map[string]int{"x": 1}, &acc))
	assert.Equal(t, ledger.Money(5), acc.Balance)

	assert.NoError(t, c.Call("POST", "/empty", "alice.near", 0, nil, &acc))

	err := c.Call("POST", "/fail", "alice.near", 0, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_admin")
}

func TestResolution(t *testing.T) {
	result := `{"pair":"BTC/USD","price":"64000.12"}`
	body, err := resolution("https://aggregator.example", result)
	require.NoError(t, err)
	assert.Equal(t, result, body["result"])
	assert.NoError(t, evidence.Verify(result, body["result_hash"]))
	assert.Equal(t, "https://aggregator.example/v1/blobs/"+body["result_hash"], body["evidence_locator"])

	_, err = resolution("://bad", result)
	assert.Error(t, err)
}
