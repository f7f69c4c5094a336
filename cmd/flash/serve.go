package flash

import (
	"cmp"
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ocervell/flash/pkg/metrics"
	"github.com/ocervell/flash/pkg/rest"
	"github.com/ocervell/flash/pkg/store"
	"github.com/ocervell/flash/pkg/store/memstore"
	"github.com/ocervell/flash/pkg/store/pgstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resource API server",
	Long:  `Starts an HTTP server exposing every resource declared in the config as CRUD endpoints`,
	Run:   runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("listen-addr", "l", "", "server listen address")
	f.StringP("conn-string", "c", "", "PostgreSQL connection string (omit for in-memory storage)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	logger := newLogger()
	defer logger.Sync()

	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	connString, _ := cmd.Flags().GetString("conn-string")
	listenAddr = cmp.Or(listenAddr, cfg.Server.ListenAddr)
	connString = cmp.Or(connString, cfg.PG.ConnString, os.Getenv("FLASH_PG_CONN_STRING"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if connString != "" {
		pg, err := pgstore.New(ctx, connString)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		st = pg
	} else {
		logger.Info("no connection string configured, using in-memory storage")
		st = memstore.New()
	}

	opts := []rest.ServerOption{rest.WithLogger(logger)}
	if cfg.Server.Prefix != "" {
		opts = append(opts, rest.WithPrefix(cfg.Server.Prefix))
	}
	server := rest.NewServer(st, opts...)

	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		res := &rest.Resource{
			Model:    &rc.Model,
			Schema:   rc.Schema,
			Path:     rc.Path,
			Cached:   rc.Cached,
			CacheTTL: cfg.Cache.TTL,
		}
		if err := server.Register(res); err != nil {
			logger.Fatal("failed to register resource", zap.String("model", rc.Model.Name), zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, &wg, logger, &metrics.ServerOpts{
			Addr: cfg.Metrics.Addr,
			Path: cfg.Metrics.Path,
		})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(listenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
}
