// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// SubunitsPerUnit is the display convention used by UI and SDK layers.
// The core never performs fractional math.
const SubunitsPerUnit = 1_000_000_000

type AccountID string

func (a AccountID) IsZero() bool {
	return a == ""
}

// ObjectID is an opaque 32 byte object identifier.
type ObjectID [32]byte

var ZeroID ObjectID

func (id ObjectID) IsZero() bool {
	return id == ZeroID
}

// Less orders ids bytewise.
func (id ObjectID) Less(o ObjectID) bool {
	return bytes.Compare(id[:], o[:]) < 0
}

func (id ObjectID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ObjectID) UnmarshalText(buf []byte) error {
	v, err := ParseObjectID(string(buf))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	buf, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid object id %q: %v", s, err)
	}
	if len(buf) != len(id) {
		return id, fmt.Errorf("invalid object id length %d", len(buf))
	}
	copy(id[:], buf)
	return id, nil
}

// Money is an amount in the ledger's smallest unit.
type Money uint64

// Display renders m in base units, e.g. 10000000 -> "0.01".
func (m Money) Display() string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(m)), -9).String()
}

var maxMoney = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ParseDisplay converts a base unit string like "1.5" into subunits.
func ParseDisplay(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", s)
	}
	sub := d.Shift(9)
	if !sub.Equal(sub.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than 9 decimals", s)
	}
	if sub.GreaterThan(maxMoney) {
		return 0, fmt.Errorf("amount %s out of range", s)
	}
	return Money(sub.BigInt().Uint64()), nil
}

// Transaction context available during contract execution
type CallContext struct {
	Caller AccountID // unforgeable sender identity
	Amount Money     // attached amount
	Time   int64     // host timestamp in milliseconds
	Digest TxDigest  // transaction digest, seeds new object ids
}
