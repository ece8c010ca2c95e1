package store

import (
	"context"
	"fmt"
	"reflect"

	"github.com/near/borsh-go"
)

// Encode serializes v into a store entry. v must be a struct, or a pointer
// to one, with exported fields only.
func Encode(kind Kind, key string, version uint64, v any) (Entry, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Entry{}, fmt.Errorf("encode %s %s: nil value", kind, key)
		}
		rv = rv.Elem()
	}
	buf, err := borsh.Serialize(rv.Interface())
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s %s: %v", kind, key, err)
	}
	return Entry{Kind: kind, Key: key, Version: version, Data: buf}, nil
}

func Decode[T any](e Entry) (T, error) {
	var v T
	if err := borsh.Deserialize(&v, e.Data); err != nil {
		return v, fmt.Errorf("decode %s %s: %v", e.Kind, e.Key, err)
	}
	return v, nil
}

// Save encodes and writes v.
func Save(ctx context.Context, s Store, kind Kind, key string, version uint64, v any) (bool, error) {
	e, err := Encode(kind, key, version, v)
	if err != nil {
		return false, err
	}
	return s.Put(ctx, e)
}
