package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
	"github.com/redis/go-redis/v9"

	"collabtext/config"
	"collabtext/remotestorage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger("collabtext-server")
	ctx := context.Background()

	// --- Connect to Redis for the relay ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("could not connect to Redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("connected to Redis")

	// --- Open room storage ---
	rooms, files, closers, err := remotestorage.OpenStores(ctx, cfg.ServerStorage, cfg)
	if err != nil {
		logger.Error("unable to open room storage", "kind", cfg.ServerStorage, "error", err)
		os.Exit(1)
	}
	for _, c := range closers {
		defer c.Close()
	}
	logger.Info("room storage ready", "kind", cfg.ServerStorage)

	if cfg.MDNSService != "" {
		mdns, err := advertise(cfg.MDNSService, cfg.ListenAddr)
		if err != nil {
			logger.Warn("failed to register mDNS service", "error", err)
		} else {
			defer mdns.Shutdown()
			logger.Info("mDNS service registered", "service", cfg.MDNSService)
		}
	}

	router := newRouter(
		&roomHandler{rooms: rooms, files: files, logger: logger.Named("rooms")},
		&relay{rdb: rdb, logger: logger.Named("relay")},
	)
	logger.Info("CollabText room server starting", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// advertise registers the server on the local network so agents can find it
// without configuration.
func advertise(service, listenAddr string) (*zeroconf.Server, error) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", listenAddr, err)
	}
	host, _ := os.Hostname()
	return zeroconf.Register(
		fmt.Sprintf("CollabText-%s", host),
		service,
		"local.",
		port,
		[]string{"txtv=0", "path=/"},
		nil,
	)
}
