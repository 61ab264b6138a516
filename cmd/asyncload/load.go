package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	asyncloader "github.com/Swind/go-async-loader"
	"github.com/Swind/go-async-loader/config"
	"github.com/Swind/go-async-loader/core"
	"github.com/Swind/go-async-loader/internal/logging"
	"github.com/Swind/go-async-loader/loader"
	obs "github.com/Swind/go-async-loader/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errLoadFailed = errors.New("some images failed to load")

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load PATH...",
		Short: "Decode images on the worker pool and place them in the scene",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoad(ctx, cfg, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runLoad loads paths and prints one line per placed item to out.
func runLoad(ctx context.Context, cfg *config.Config, paths []string, out, logOut io.Writer) error {
	slogger, closer, err := logging.New(cfg.Logging, logOut)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	logger := core.NewSlogLogger(slogger)

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter, err := obs.NewMetricsExporter("asyncloader", reg, obs.ExporterOptions{})
	if err != nil {
		return err
	}

	rt, err := asyncloader.Open(asyncloader.Options{
		Name:    "loader",
		Workers: int(cfg.Workers),
		Config: &core.Config{
			Logger:              logger,
			PanicHandler:        &core.DefaultPanicHandler{Logger: logger},
			Metrics:             exporter,
			RejectedTaskHandler: &core.DefaultRejectedTaskHandler{Logger: logger},
		},
	})
	if err != nil {
		return err
	}

	scene := loader.NewScene()
	l := loader.New(rt, rt, scene, loader.Options{
		MaxTextureSize: cfg.MaxTextureSize,
		Logger:         logger,
		Busy:           rt.BusyTracker(),
	})

	poller, err := obs.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
	if err != nil {
		return err
	}
	poller.AddPool(rt.Pool().Name(), rt.Pool())
	poller.AddCompletionQueue(rt.Completions().Name(), rt.Completions())
	poller.AddBusyTracker("loads", rt.BusyTracker())

	for _, p := range paths {
		if _, err := l.Load(p); err != nil {
			_ = rt.Close()
			return err
		}
	}

	loop := rt.NewOwnerLoop(core.OwnerLoopConfig{
		Interval:     cfg.TickInterval,
		LockOSThread: cfg.LockOSThread,
		Logger:       logger,
		Frame: func(ctx context.Context, dt time.Duration) {
			if !l.Busy() {
				core.GetCurrentOwnerLoop(ctx).Shutdown()
			}
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.WaitShutdown(gctx)
	})
	if cfg.Metrics.Address != "" {
		poller.Start(gctx)
		defer poller.Stop()
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Address, reg, loop.Done(), logger)
		})
	}
	waitErr := g.Wait()

	loop.Stop()
	if err := rt.Close(); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}

	for _, item := range scene.Items() {
		fmt.Fprintf(out, "%s\ttexture=%d\t%.0fx%.0f at (%.0f,%.0f)\n",
			item.Source, item.Texture, item.Rect.Width, item.Rect.Height, item.Rect.X, item.Rect.Y)
	}
	if l.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d, last: %w", errLoadFailed, l.Failed(), len(paths), l.LastError())
	}
	return nil
}

// serveMetrics serves /metrics until ctx ends or done is closed.
func serveMetrics(ctx context.Context, addr string, reg *prom.Registry, done <-chan struct{}, logger core.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	logger.Info("serving metrics", core.F("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
