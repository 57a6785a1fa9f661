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

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"collabtext/config"
	"collabtext/envelope"
	"collabtext/portal"
	"collabtext/remotestorage"
)

const discoveryTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger("collabtext-agent")
	if err := run(cfg, logger); err != nil {
		logger.Error("agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Find the room server ---
	if cfg.HTTPURL == "" {
		logger.Info("looking for a room server", "service", cfg.MDNSService)
		base, err := discover(ctx, cfg.MDNSService, discoveryTimeout)
		if err != nil {
			return err
		}
		cfg.HTTPURL = base
		logger.Info("mDNS discovered room server", "url", base)
	}

	// --- Room credentials ---
	if cfg.RoomID == "" {
		cfg.RoomID = uuid.NewString()
	}
	if cfg.RoomKey == "" {
		key, err := envelope.GenerateKey()
		if err != nil {
			return err
		}
		cfg.RoomKey = key
	}
	if _, err := envelope.ParseKey(cfg.RoomKey); err != nil {
		return err
	}
	logger.Info("joined room", "room", cfg.RoomID, "link", fmt.Sprintf("#room=%s,%s", cfg.RoomID, cfg.RoomKey))

	// --- Remote storage ---
	remote, err := remotestorage.New(ctx, cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("unable to open remote storage: %w", err)
	}
	defer remote.Close()
	logger.Info("remote storage ready", "kind", remote.Kind)

	// --- Relay ---
	wsURL, err := relayURL(cfg.HTTPURL, cfg.RoomID)
	if err != nil {
		return err
	}
	socket, err := portal.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("could not join relay at %s: %w", wsURL, err)
	}
	p := &portal.Portal{RoomID: cfg.RoomID, RoomKey: cfg.RoomKey, Socket: socket}

	collab := newCollaborator(p, remote, logger.Named("collab"))
	hub := newHub(collab.handleOp, logger.Named("hub"))
	collab.publish = hub.publish
	go hub.run()

	if err := collab.load(ctx); err != nil {
		logger.Warn("could not load room scene", "error", err)
	}
	go func() {
		if err := socket.Run(ctx, collab.applyRemote); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("relay connection closed", "error", err)
		}
	}()

	saved := make(chan struct{})
	go func() {
		collab.saveLoop(ctx, cfg.SaveInterval)
		close(saved)
	}()

	// --- Local UI ---
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(cfg.UIDir)))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	srv := &http.Server{Addr: cfg.UIListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("CollabText agent is running", "addr", cfg.UIListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-saved
		return fmt.Errorf("failed to start server: %w", err)
	}
	<-saved
	return nil
}
