package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoin(t *testing.T) {
	c := NewCoin(100)
	part, err := c.Split(30)
	require.NoError(t, err)
	assert.Equal(t, Money(30), part.Value())
	assert.Equal(t, Money(70), c.Value())

	_, err = c.Split(71)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, Money(70), c.Value(), "failed split keeps funds")

	c.Join(&part)
	assert.Equal(t, Money(100), c.Value())
	assert.True(t, part.IsZero(), "joined coin is drained")
}

func TestBank(t *testing.T) {
	b := NewBank()
	require.NoError(t, b.Mint("a.near", 100))
	c, err := b.Take("a.near", 40)
	require.NoError(t, err)
	assert.Equal(t, Money(60), b.Balance("a.near"))

	_, err = b.Take("a.near", 61)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	b.Credit("b.near", &c)
	assert.True(t, c.IsZero())
	assert.Equal(t, Money(40), b.Balance("b.near"))
	assert.Equal(t, Money(100), b.Supply(), "moves conserve supply")

	assert.ErrorIs(t, b.Mint("b.near", math.MaxUint64), ErrSupplyExceeded)

	_, v1 := b.Snapshot("a.near")
	require.NoError(t, b.Mint("c.near", 1))
	_, v2 := b.Snapshot("a.near")
	assert.Greater(t, v2, v1)

	b.Restore(map[AccountID]Money{"x.near": 5}, 10, 100)
	assert.Equal(t, Money(15), b.Supply())
	_, v3 := b.Snapshot("x.near")
	assert.Greater(t, v3, uint64(100))
}

func TestObjectID(t *testing.T) {
	d := NewTxDigest()
	a := DeriveObjectID(d, 0)
	assert.Equal(t, a, DeriveObjectID(d, 0), "stable")
	assert.NotEqual(t, a, DeriveObjectID(d, 1))
	assert.NotEqual(t, a, DeriveObjectID(NewTxDigest(), 0))

	parsed, err := ParseObjectID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseObjectID("0x1234")
	assert.Error(t, err)
}

func TestMoneyDisplay(t *testing.T) {
	assert.Equal(t, "0.01", Money(10_000_000).Display())
	assert.Equal(t, "1", Money(SubunitsPerUnit).Display())
	assert.Equal(t, "0.000001", Money(1000).Display())

	m, err := ParseDisplay("1.5")
	require.NoError(t, err)
	assert.Equal(t, Money(1_500_000_000), m)
	_, err = ParseDisplay("0.0000000001")
	assert.Error(t, err)
	_, err = ParseDisplay("-1")
	assert.Error(t, err)
}

func TestClocks(t *testing.T) {
	c := NewManualClock(100)
	c.Set(50)
	assert.Equal(t, int64(100), c.Now(), "never goes back")
	c.Advance(10)
	assert.Equal(t, int64(110), c.Now())

	var m MonotonicClock
	a := m.Now()
	assert.GreaterOrEqual(t, m.Now(), a)
}
