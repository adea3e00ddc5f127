// Command joaderd is the joader-table RPC server: it wires the shared
// arena, the per-dataset joader table, and the JSON-over-HTTP front end
// together and drives the table's batch loop until shut down.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropic-labs/joader/internal/arena"
	"github.com/anthropic-labs/joader/internal/idgen"
	"github.com/anthropic-labs/joader/internal/joader"
	"github.com/anthropic-labs/joader/internal/rpcserver"
)

// config holds every flag-configurable knob joaderd takes at startup.
type config struct {
	shmName    string
	capacity   uint64
	headCount  int
	targetSize int
	listenAddr string
}

func parseConfig() config {
	var c config
	flag.StringVar(&c.shmName, "shm", "/joaderd", "name of the shared-memory object backing the arena")
	flag.Uint64Var(&c.capacity, "capacity", 1<<30, "arena data-segment capacity in bytes")
	flag.IntVar(&c.headCount, "heads", 1<<16, "arena descriptor-table head count")
	flag.IntVar(&c.targetSize, "batch-size", 256, "indices accumulated per joader batch step")
	flag.StringVar(&c.listenAddr, "listen", ":8080", "HTTP listen address for the RPC surface")
	flag.Parse()
	return c
}

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := parseConfig()

	cache, err := arena.Open(cfg.shmName, cfg.capacity, cfg.headCount)
	if err != nil {
		slog.Error("open arena", "shm", cfg.shmName, "err", err)
		return 1
	}
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Error("close arena", "err", err)
		}
	}()

	table := joader.NewTable(cache)
	handler := rpcserver.New(idgen.New(), table)
	handler.Logger = func(r *http.Request, err error) {
		if err != nil {
			slog.Error("rpc", "method", r.Method, "path", r.URL.Path, "err", err)
		} else {
			slog.Debug("rpc", "method", r.Method, "path", r.URL.Path)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: cfg.listenAddr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.listenAddr)
		serveErr <- server.ListenAndServe()
	}()

	go runBatchLoop(ctx, table, cfg.targetSize)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "err", err)
		}
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("listen and serve", "err", err)
			return 1
		}
	}
	return 0
}

// runBatchLoop repeatedly steps every non-idle joader until ctx is
// canceled, sleeping briefly whenever a pass finds nothing to do.
func runBatchLoop(ctx context.Context, table *joader.Table, targetSize int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		active, err := table.Next(ctx, targetSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("batch step", "err", err)
			continue
		}
		if active == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}
