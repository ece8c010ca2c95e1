// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/echa/log"

	"blockwatch.cc/oracle-market/pkg/config"
	"blockwatch.cc/oracle-market/pkg/host"
	"blockwatch.cc/oracle-market/pkg/metrics"
	"blockwatch.cc/oracle-market/pkg/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	cfg, err := config.LoadNode(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return nil
		}
		return err
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.NewCollector("oracle_market")
	h := host.New(host.Options{
		Admin:   cfg.Admin,
		Demo:    cfg.Demo,
		Store:   s,
		Metrics: m,
	})
	if err := h.Restore(ctx); err != nil {
		return err
	}
	if cfg.Demo {
		log.Warnf("Demo mode enabled: faucet and simple services are available")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewAPI(h, m, cfg.Faucet).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Infof("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg *config.Node) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Infof("Using in-memory store, state is lost on exit")
		return store.NewMemory(), nil
	case config.StoreRedis:
		return store.Dial(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.StoreMiniredis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %v", err)
		}
		log.Infof("Using embedded redis at %s", mr.Addr())
		s, err := store.Dial(ctx, "redis://"+mr.Addr(), cfg.RedisPrefix)
		if err != nil {
			mr.Close()
			return nil, err
		}
		return &embedded{Redis: s, server: mr}, nil
	}
	return nil, fmt.Errorf("unsupported store %q", cfg.Store)
}

// embedded stops the in-process redis server together with the store.
type embedded struct {
	*store.Redis
	server *miniredis.Miniredis
}

func (e *embedded) Close() error {
	err := e.Redis.Close()
	e.server.Close()
	return err
}
