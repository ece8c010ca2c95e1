// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"errors"
	"fmt"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Coin is a movable fund container. Funds inside a coin exist exactly once:
// splitting moves value out of the source, joining drains the argument.
type Coin struct {
	value Money
}

func NewCoin(v Money) Coin {
	return Coin{value: v}
}

func (c Coin) Value() Money {
	return c.value
}

func (c Coin) IsZero() bool {
	return c.value == 0
}

// Split extracts exactly amount from c. The remainder stays in c.
func (c *Coin) Split(amount Money) (Coin, error) {
	if amount > c.value {
		return Coin{}, fmt.Errorf("split %d from %d: %w", amount, c.value, ErrInsufficientFunds)
	}
	c.value -= amount
	return Coin{value: amount}, nil
}

// Join moves all funds from o into c.
func (c *Coin) Join(o *Coin) {
	c.value += o.value
	o.value = 0
}

// Drain empties c and returns its former value.
func (c *Coin) Drain() Money {
	v := c.value
	c.value = 0
	return v
}
