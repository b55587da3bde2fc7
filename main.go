package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	apihttp "carbon-inventory/internal/api/http"
	catalog "carbon-inventory/internal/catalog/domain"
	catalogpostgres "carbon-inventory/internal/catalog/infrastructure/postgres"
	catalogyaml "carbon-inventory/internal/catalog/infrastructure/yamlfile"
	"carbon-inventory/internal/config"
	"carbon-inventory/internal/eventing"
	"carbon-inventory/internal/observability/metrics"
	sessionapp "carbon-inventory/internal/session/application"
	session "carbon-inventory/internal/session/domain"
	sessionmemory "carbon-inventory/internal/session/infrastructure/memory"
	sessionpostgres "carbon-inventory/internal/session/infrastructure/postgres"
	"carbon-inventory/internal/sessiontoken"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config error")
	}
	logger := cfg.Logger()
	metrics.Init()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("db open error")
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.WithError(err).Fatal("db ping error")
		}
	}

	catalogs, err := buildCatalogRepository(cfg, db)
	if err != nil {
		logger.WithError(err).Fatal("catalog repository error")
	}

	var sink session.Sink
	if db != nil {
		sink = sessionpostgres.NewSnapshotRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set; saved snapshots are kept in memory only")
		sink = sessionmemory.NewSink()
	}
	persister, err := sessionapp.NewSnapshotPersister(sink, logger)
	if err != nil {
		logger.WithError(err).Fatal("snapshot persister error")
	}

	bus := eventing.NewInMemoryBus(eventing.WithLogger(logger))
	eventing.SubscribeTyped(bus, persister.HandleSnapshotRequested)

	service, err := sessionapp.NewService(catalogs, bus, logger, sessionapp.WithIdleTTL(cfg.SessionIdleTTL))
	if err != nil {
		logger.WithError(err).Fatal("session service error")
	}

	issuer := sessiontoken.NewIssuer([]byte(cfg.SessionSecret), cfg.SessionTokenTTL)
	if !issuer.Enabled() {
		logger.Warn("SESSION_SECRET not set; session handles are not checked")
	}
	sessionHandler, err := apihttp.NewHandler(service, issuer, logger)
	if err != nil {
		logger.WithError(err).Fatal("session handler error")
	}
	tokens := sessiontoken.NewMiddleware(issuer, apihttp.SessionsPath)

	mux := http.NewServeMux()
	mux.Handle(apihttp.SessionsPath, sessionHandler)
	mux.Handle(apihttp.SessionsPath+"/", tokens.Wrap(sessionHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, service, cfg.SessionSweepInterval)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apihttp.LoggingMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http shutdown error")
		}
	}()

	logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("http server error")
	}
	service.Wait()
	logger.Info("shutdown complete")
}

func buildCatalogRepository(cfg config.Config, db *sql.DB) (catalog.Repository, error) {
	switch cfg.CatalogSource {
	case config.CatalogSourcePostgres:
		if db == nil {
			return nil, errors.New("postgres catalog requires DATABASE_URL")
		}
		return catalogpostgres.NewRepository(db), nil
	default:
		repo, err := catalogyaml.NewRepository(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func sweepSessions(ctx context.Context, service *sessionapp.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			service.Sweep(now.UTC())
		}
	}
}
