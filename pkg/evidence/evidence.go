// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package evidence computes and checks content identifiers for oracle
// results and query descriptions. Providers use it to fill in the result
// hash before resolving a query; mirrors and clients use it to verify a
// stored hash against the result payload. The settlement core itself never
// inspects these values.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	cid "github.com/ipfs/go-cid"
	mc "github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"
)

var ErrHashMismatch = errors.New("result hash mismatch")

var (
	jsonPrefix = cid.Prefix{
		Version:  1,
		Codec:    uint64(mc.Json),
		MhType:   mh.SHA2_256,
		MhLength: -1, // default length
	}
	rawPrefix = cid.Prefix{
		Version:  1,
		Codec:    uint64(mc.Raw),
		MhType:   mh.SHA2_256,
		MhLength: -1,
	}
)

// ResultCID returns the content id of a result payload. Valid JSON payloads
// use the json codec, everything else is hashed as raw bytes.
func ResultCID(result []byte) (cid.Cid, error) {
	if json.Valid(result) {
		return jsonPrefix.Sum(result)
	}
	return rawPrefix.Sum(result)
}

// HashResult returns the string form of ResultCID.
func HashResult(result string) (string, error) {
	c, err := ResultCID([]byte(result))
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// Verify checks that hash is a CID of result. The CID prefix of hash is
// reused, so results hashed with another codec or hash function still verify.
func Verify(result, hash string) error {
	c, err := cid.Decode(hash)
	if err != nil {
		return fmt.Errorf("invalid result hash %q: %v", hash, err)
	}
	sum, err := c.Prefix().Sum([]byte(result))
	if err != nil {
		return fmt.Errorf("hash result: %v", err)
	}
	if !sum.Equals(c) {
		return fmt.Errorf("%w: have %s want %s", ErrHashMismatch, sum, c)
	}
	return nil
}

type queryDoc struct {
	Service string `json:"service"`
	Type    string `json:"type"`
	Params  string `json:"params"`
}

// QueryCID derives a deterministic query label from its inputs so that
// identical requests map to the same label.
func QueryCID(service, queryType, params string) (string, error) {
	buf, err := json.Marshal(queryDoc{Service: service, Type: queryType, Params: params})
	if err != nil {
		return "", err
	}
	c, err := rawPrefix.Sum(buf)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// BlobLocator builds an evidence locator for a blob stored under a content
// id at an aggregator base URL.
func BlobLocator(base string, blob cid.Cid) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid blob store url: %v", err)
	}
	return u.JoinPath("v1", "blobs", blob.String()).String(), nil
}
