// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package config reads settings for the node and simulator binaries. Values
// come from command line flags whose defaults are taken from the process
// environment, optionally populated from a .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/echa/log"
	"github.com/joho/godotenv"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

// ErrHelp is returned when -h was requested and usage has been printed.
var ErrHelp = flag.ErrHelp

const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StoreMiniredis = "miniredis" // embedded redis, handy for local demos
)

type Node struct {
	Listen      string
	Store       string
	RedisURL    string
	RedisPrefix string
	Admin       ledger.AccountID
	Demo        bool
	Faucet      ledger.Money
	LogLevel    log.Level
}

type Sim struct {
	Node      string
	BlobStore string
	Provider  ledger.AccountID
	User      ledger.AccountID
	Price     ledger.Money
	LogLevel  log.Level
}

// LoadEnv loads an optional .env file. A missing file is not an error.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env: %v", err)
	}
	return nil
}

func LoadNode(args []string) (*Node, error) {
	if err := LoadEnv(); err != nil {
		return nil, err
	}
	var (
		cfg    Node
		admin  string
		faucet string
		level  string
		flags  = flag.NewFlagSet("node", flag.ContinueOnError)
	)
	flags.Usage = func() {}
	flags.StringVar(&cfg.Listen, "listen", getEnv("MARKET_LISTEN", ":8000"), "HTTP listen address")
	flags.StringVar(&cfg.Store, "store", getEnv("MARKET_STORE", StoreMemory), "object store (memory, redis, miniredis)")
	flags.StringVar(&cfg.RedisURL, "redis", getEnv("MARKET_REDIS_URL", "redis://localhost:6379/0"), "redis url")
	flags.StringVar(&cfg.RedisPrefix, "prefix", getEnv("MARKET_REDIS_PREFIX", "market"), "redis key prefix")
	flags.StringVar(&admin, "admin", getEnv("MARKET_ADMIN", "treasury.near"), "treasury admin account")
	flags.BoolVar(&cfg.Demo, "demo", getEnvBool("MARKET_DEMO", false), "enable demo endpoints (faucet, simple services)")
	flags.StringVar(&faucet, "faucet", getEnv("MARKET_FAUCET", "1"), "faucet amount per request in base units")
	flags.StringVar(&level, "v", getEnv("MARKET_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	if err := parse(flags, args); err != nil {
		return nil, err
	}

	cfg.Admin = ledger.AccountID(admin)
	var err error
	if cfg.Faucet, err = ledger.ParseDisplay(faucet); err != nil {
		return nil, fmt.Errorf("invalid faucet amount: %v", err)
	}
	if cfg.LogLevel, err = parseLevel(level); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (c *Node) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StoreMiniredis:
	default:
		return fmt.Errorf("unsupported store %q", c.Store)
	}
	if c.Admin.IsZero() {
		return fmt.Errorf("empty treasury admin")
	}
	if c.Store == StoreRedis && c.RedisURL == "" {
		return fmt.Errorf("empty redis url")
	}
	return nil
}

func LoadSim(args []string) (*Sim, error) {
	if err := LoadEnv(); err != nil {
		return nil, err
	}
	var (
		cfg   Sim
		prov  string
		user  string
		price string
		level string
		flags = flag.NewFlagSet("sim", flag.ContinueOnError)
	)
	flags.Usage = func() {}
	flags.StringVar(&cfg.Node, "node", getEnv("MARKET_NODE", "http://localhost:8000"), "market node endpoint")
	flags.StringVar(&cfg.BlobStore, "blobs", getEnv("MARKET_BLOB_STORE", "http://localhost:31415"), "evidence blob aggregator base url")
	flags.StringVar(&prov, "provider", getEnv("MARKET_PROVIDER", "provider.near"), "provider account")
	flags.StringVar(&user, "user", getEnv("MARKET_USER", "user.near"), "subscriber account")
	flags.StringVar(&price, "price", "0.000001", "price per query in base units")
	flags.StringVar(&level, "v", getEnv("MARKET_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	if err := parse(flags, args); err != nil {
		return nil, err
	}
	cfg.Provider = ledger.AccountID(prov)
	cfg.User = ledger.AccountID(user)
	var err error
	if cfg.Price, err = ledger.ParseDisplay(price); err != nil {
		return nil, fmt.Errorf("invalid price: %v", err)
	}
	if cfg.LogLevel, err = parseLevel(level); err != nil {
		return nil, err
	}
	if cfg.Provider.IsZero() || cfg.User.IsZero() {
		return nil, fmt.Errorf("empty account id")
	}
	return &cfg, nil
}

func parse(flags *flag.FlagSet, args []string) error {
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		fmt.Printf("Usage: %s [flags]\n", flags.Name())
		fmt.Println("\nFlags")
		flags.PrintDefaults()
	}
	return err
}

func parseLevel(s string) (log.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	}
	return log.LevelInfo, fmt.Errorf("invalid log level %q", s)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.Trim(strings.TrimSpace(v), "\"")
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
