// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/echa/log"
	"github.com/redis/go-redis/v9"
)

// Objects live in one hash per key holding the fields version and data. A
// set per kind indexes the keys.
//
// KEYS[1] object hash, KEYS[2] kind index
// ARGV[1] version, ARGV[2] data, ARGV[3] key
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`)

const DefaultPrefix = "market"

type Redis struct {
	client *redis.Client
	prefix string
}

// Dial connects to the redis server at url and verifies the connection.
func Dial(ctx context.Context, url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %v", err)
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 5 * time.Second
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if opt.MaxRetries == 0 {
		opt.MaxRetries = 2
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %v", err)
	}
	log.Infof("Connected to redis at %s", opt.Addr)
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) objectKey(kind Kind, key string) string {
	return r.prefix + ":" + string(kind) + ":" + key
}

func (r *Redis) indexKey(kind Kind) string {
	return r.prefix + ":" + string(kind) + ":index"
}

func (r *Redis) Put(ctx context.Context, e Entry) (bool, error) {
	n, err := putScript.Run(ctx, r.client,
		[]string{r.objectKey(e.Kind, e.Key), r.indexKey(e.Kind)},
		strconv.FormatUint(e.Version, 10), e.Data, e.Key,
	).Int()
	if err != nil {
		return false, fmt.Errorf("put %s %s: %v", e.Kind, e.Key, err)
	}
	return n == 1, nil
}

func (r *Redis) Get(ctx context.Context, kind Kind, key string) (Entry, error) {
	vals, err := r.client.HMGet(ctx, r.objectKey(kind, key), "version", "data").Result()
	if err != nil {
		return Entry{}, fmt.Errorf("get %s %s: %v", kind, key, err)
	}
	return parseEntry(kind, key, vals)
}

func (r *Redis) List(ctx context.Context, kind Kind) ([]Entry, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %v", kind, err)
	}
	sort.Strings(keys)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HMGet(ctx, r.objectKey(kind, key), "version", "data")
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("list %s: %v", kind, err)
		}
	}

	list := make([]Entry, 0, len(keys))
	for i, key := range keys {
		e, err := parseEntry(kind, key, cmds[i].Val())
		if errors.Is(err, ErrNotFound) {
			log.Warnf("store: %s %s indexed but missing", kind, key)
			continue
		}
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func parseEntry(kind Kind, key string, vals []any) (Entry, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, ErrNotFound
	}
	vs, _ := vals[0].(string)
	data, _ := vals[1].(string)
	version, err := strconv.ParseUint(vs, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%s %s: invalid version %q", kind, key, vs)
	}
	return Entry{Kind: kind, Key: key, Version: version, Data: []byte(data)}, nil
}
