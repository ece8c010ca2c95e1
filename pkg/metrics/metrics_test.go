package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"blockwatch.cc/oracle-market/pkg/market"
)

func TestObserveTx(t *testing.T) {
	c := NewCollector("test")
	c.ObserveTx("query_oracle", nil, time.Millisecond)
	c.ObserveTx("query_oracle", nil, time.Millisecond)
	c.ObserveTx("query_oracle", &market.Error{Kind: market.ErrSubscriptionCallerMismatch}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.txTotal.WithLabelValues("query_oracle", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.txTotal.WithLabelValues("query_oracle", "subscription_caller_mismatch")))
}

func TestFeesAndGauges(t *testing.T) {
	c := NewCollector("test")
	c.ObserveFees(30, 970)
	c.ObserveFees(3, 97)
	c.SetCollateral(10_000_000)
	c.SetTreasury(33)

	assert.Equal(t, 33.0, testutil.ToFloat64(c.feesTotal.WithLabelValues("platform")))
	assert.Equal(t, 1067.0, testutil.ToFloat64(c.feesTotal.WithLabelValues("provider")))
	assert.Equal(t, 10_000_000.0, testutil.ToFloat64(c.collateralLocked))
	assert.Equal(t, 33.0, testutil.ToFloat64(c.treasuryBalance))
}

func TestHandler(t *testing.T) {
	c := NewCollector("test")
	c.SetTreasury(7)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_treasury_balance 7"))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveTx("x", nil, 0)
		c.ObserveFees(1, 2)
		c.SetCollateral(1)
		c.SetTreasury(1)
		c.PersistFailed("service")
	})
}
