// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	mh "github.com/multiformats/go-multihash"
)

// TxDigest identifies a single transaction.
type TxDigest [16]byte

func NewTxDigest() TxDigest {
	return TxDigest(uuid.New())
}

func (d TxDigest) String() string {
	return uuid.UUID(d).String()
}

// DeriveObjectID returns the id of the n-th object created by the
// transaction identified by d. Ids are the sha2-256 digest over the
// transaction digest and the creation index, so they are unique across
// transactions and stable for a given (digest, n) pair.
func DeriveObjectID(d TxDigest, n uint32) ObjectID {
	var buf [20]byte
	copy(buf[:16], d[:])
	binary.BigEndian.PutUint32(buf[16:], n)
	sum, err := mh.Sum(buf[:], mh.SHA2_256, -1)
	if err != nil {
		panic(fmt.Errorf("derive object id: %v", err))
	}
	dec, err := mh.Decode(sum)
	if err != nil {
		panic(fmt.Errorf("derive object id: %v", err))
	}
	var id ObjectID
	copy(id[:], dec.Digest)
	return id
}
