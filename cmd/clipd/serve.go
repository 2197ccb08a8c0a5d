package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.clipd.dev/clipd/internal/auth"
	"go.clipd.dev/clipd/internal/history"
	"go.clipd.dev/clipd/internal/httpapi"
	"go.clipd.dev/clipd/internal/presence"
	"go.clipd.dev/clipd/internal/relay"
	"go.clipd.dev/clipd/internal/secret"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipboard relay",
		Long: `Starts the clipd relay. Devices of the same user share a clipboard;
every accepted change is appended to that user's history.

One listener serves both the device wire protocol and the REST API
(POST /api/clips, GET /api/clips/{user}, GET /healthz).

Precedence (lowest → highest): defaults → config file → CLIPD_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServe(v) },
	}

	f := cmd.Flags()
	f.String("addr", "0.0.0.0:8941", "listen address (wire protocol + REST)")
	f.String("secret", "", "relay secret: signs JWTs, doubles as shared token and wire key (empty = open relay, plaintext wire)")
	f.String("database-url", "", "PostgreSQL URL for durable history (empty = in-memory)")
	f.String("redis-url", "", "Redis URL for device presence (empty = presence disabled)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(v *viper.Viper) error {
	setupLogging(v)

	addr := v.GetString("addr")
	relaySecret := v.GetString("secret")
	databaseURL := v.GetString("database-url")
	redisURL := v.GetString("redis-url")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var key *[32]byte
	if relaySecret != "" {
		var err error
		key, err = secret.DeriveKey(relaySecret)
		if err != nil {
			return fmt.Errorf("key derivation: %w", err)
		}
	}

	store, closeStore, err := openStore(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker, closeTracker, err := openTracker(ctx, redisURL)
	if err != nil {
		return err
	}
	defer closeTracker()

	verifier := auth.NewVerifier(relaySecret)
	r := relay.New(store, tracker)
	api := httpapi.New(r, store, verifier)

	slog.Info("clipd relay starting",
		"version", Version,
		"addr", addr,
		"durable_history", databaseURL != "",
		"presence", redisURL != "",
		"encrypted", key != nil,
		"open", verifier.Open(),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	// One port, two protocols: HTTP requests go to the REST API, everything
	// else is treated as a device wire connection.
	mux := cmux.New(ln)
	httpLn := mux.Match(cmux.HTTP1Fast())
	wireLn := mux.Match(cmux.Any())

	httpSrv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrServerClosed) {
			slog.Error("http serve failed", "err", err)
		}
	}()

	go acceptWire(ctx, wireLn, r, verifier, key)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		mux.Close()
	}()

	slog.Info("listening", "addr", ln.Addr())
	if err := mux.Serve(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func acceptWire(ctx context.Context, ln net.Listener, r *relay.Relay, verifier *auth.Verifier, key *[32]byte) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, cmux.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		peer := relay.NewConnPeer(conn, r, verifier, key)
		go peer.Serve(ctx)
	}
}

func openStore(ctx context.Context, databaseURL string) (history.Store, func(), error) {
	if databaseURL == "" {
		slog.Warn("no database-url, history is in-memory and lost on restart")
		return history.NewMemory(), func() {}, nil
	}
	pg, err := history.NewPostgres(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("history store: %w", err)
	}
	return pg, pg.Close, nil
}

func openTracker(ctx context.Context, redisURL string) (presence.Tracker, func(), error) {
	if redisURL == "" {
		return presence.Noop{}, func() {}, nil
	}
	rd, err := presence.NewRedis(ctx, redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("presence tracker: %w", err)
	}
	return rd, func() { _ = rd.Close() }, nil
}
