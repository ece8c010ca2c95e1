// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package store persists marketplace objects as versioned, borsh encoded
// blobs. Writers never hold object locks while talking to a store, so every
// write carries the object version and a store keeps the highest version it
// has seen. A delayed write of an older snapshot is dropped.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: entry not found")

type Kind string

const (
	KindService      Kind = "service"
	KindSubscription Kind = "subscription"
	KindQuery        Kind = "query"
	KindRecord       Kind = "record"
	KindCollateral   Kind = "collateral"
	KindTreasury     Kind = "treasury"
	KindAccount      Kind = "account"
)

var Kinds = []Kind{
	KindService,
	KindSubscription,
	KindQuery,
	KindRecord,
	KindCollateral,
	KindTreasury,
	KindAccount,
}

// Entry is one persisted object.
type Entry struct {
	Kind    Kind
	Key     string
	Version uint64
	Data    []byte
}

type Store interface {
	// Put writes e unless the store already holds the same or a newer
	// version for its key. It reports whether the entry was written.
	Put(ctx context.Context, e Entry) (bool, error)

	// Get returns ErrNotFound for unknown keys.
	Get(ctx context.Context, kind Kind, key string) (Entry, error)

	// List returns all entries of a kind ordered by key.
	List(ctx context.Context, kind Kind) ([]Entry, error)

	Close() error
}
