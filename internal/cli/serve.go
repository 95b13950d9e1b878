package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cadstore/internal/command"
	"github.com/roach88/cadstore/internal/config"
	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/gateway"
	"github.com/roach88/cadstore/internal/metrics"
	"github.com/roach88/cadstore/internal/outbox"
	"github.com/roach88/cadstore/internal/persist"
	"github.com/roach88/cadstore/internal/registry"
	"github.com/roach88/cadstore/internal/store"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Listen        string
	MetricsListen string

	// Ready, when set, receives the bound gateway address once the
	// listener is up. Used by tests.
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the object store over WebSocket",
		Long: `Start the store and accept client sessions on /ws.

Each connection identifies its user with ?user=<uuid>. Requests are JSON
objects {"id","method","args"}; responses and update messages are written
back on the same connection. Stops on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "gateway listen address (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "metrics listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, opts *ServeOptions) error {
	cfg, err := config.Load(rootOpts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.MetricsListen != "" {
		cfg.MetricsListen = opts.MetricsListen
	}
	if !rootOpts.Verbose {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), rootOpts.LogFormat, cfg.Level()))
	}
	log := slog.Default()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	m := metrics.New()
	out := outbox.New(cfg.Outbox.Capacity)
	out.SetObserver(m)

	routerOpts := []persist.RouterOption{persist.WithLogger(log)}
	if cfg.S3Enabled() {
		s3, err := persist.NewS3(ctx, cfg.S3)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure s3", err)
		}
		routerOpts = append(routerOpts, persist.WithS3(s3))
	}
	router := persist.NewRouter(routerOpts...)
	defer router.Close()

	engineOpts := append(cfg.EngineOptions(),
		engine.WithObserver(m),
		engine.WithStoreOptions(store.WithObserver(m)),
		engine.WithLogger(log),
	)
	reg := registry.New(out, router,
		registry.WithEngineOptions(engineOpts...),
		registry.WithLogger(log),
	)
	defer reg.Close()

	dispatcher := command.New(reg, command.WithLogger(log), command.WithObserver(m))
	gw := gateway.New(dispatcher, reg, out, gateway.WithLogger(log))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	servers := []*http.Server{{Handler: gw.Handler(), BaseContext: func(net.Listener) context.Context { return ctx }}}
	listeners := []net.Listener{ln}

	if cfg.MetricsListen != "" {
		mln, err := net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			ln.Close()
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		servers = append(servers, &http.Server{Handler: mux})
		listeners = append(listeners, mln)
		log.Info("metrics listening", "addr", mln.Addr().String())
	}

	log.Info("gateway listening", "addr", ln.Addr().String(), "workers", cfg.Engine.Workers)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			if err := srv.Serve(listeners[i]); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	log.Info("server stopped gracefully")
	return nil
}
