package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/alertwx/internal/adapter/http"
	"github.com/couchcryptid/alertwx/internal/adapter/nwsapi"
	"github.com/couchcryptid/alertwx/internal/adapter/nwws"
	"github.com/couchcryptid/alertwx/internal/alertmanager"
	"github.com/couchcryptid/alertwx/internal/broker"
	"github.com/couchcryptid/alertwx/internal/config"
	"github.com/couchcryptid/alertwx/internal/geometry"
	"github.com/couchcryptid/alertwx/internal/observability"
	"github.com/couchcryptid/alertwx/internal/pipeline"
	"github.com/couchcryptid/alertwx/internal/wx/alertparse"
)

// NWWS-OI server addresses and domains are fixed by the upstream service,
// not user-configurable. See https://www.weather.gov/nwws/#access.
const (
	nwwsPrimaryAddr = "nwws-oi-cprk.weather.gov:5222"
	nwwsBackupAddr  = "nwws-oi-bldr.weather.gov:5222"
	nwwsDomain      = "nwws-oi.weather.gov"
	nwwsRoomDomain  = "conference.nwws-oi.weather.gov"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	restClient := nwsapi.New(cfg.NWSAPIBaseURL, cfg.NWSAPIUserAgent, cfg.APIRequestTimeout, logger)

	resolver := geometry.New(restClient, clock, logger, metrics, cfg.ZoneCacheTTL, cfg.GeometryPersistencePath)
	if n, err := resolver.Load(); err != nil {
		logger.Warn("failed to load geometry cache", "err", err)
	} else if n > 0 {
		logger.Info("loaded geometry cache", "entries", n)
	}

	alertPersistencePath := ""
	if cfg.PersistAlerts {
		alertPersistencePath = cfg.AlertPersistencePath
	}
	manager := alertmanager.New(clock, logger, metrics, cfg.AlertCleanupInterval, cfg.MaxRecentProducts, alertPersistencePath)
	if n, err := manager.Load(); err != nil {
		logger.Warn("failed to load persisted alerts", "err", err)
	} else if n > 0 {
		logger.Info("loaded persisted alerts", "count", n)
	}

	processor := pipeline.NewProcessor(manager, resolver, cfg.ZoneMaxConcurrentFetch, logger, metrics)
	poller := pipeline.NewPoller(restClient, processor, clock, logger, metrics, cfg.APIPollInterval, cfg.FilterStates, cfg.TargetPhenomena)

	var nwwsClient *nwws.Client
	if cfg.NWWSUsername != "" {
		nwwsClient = nwws.New(nwws.Config{
			PrimaryAddr:  nwwsPrimaryAddr,
			BackupAddr:   nwwsBackupAddr,
			Domain:       nwwsDomain,
			Username:     cfg.NWWSUsername,
			Password:     cfg.NWWSPassword,
			Resource:     cfg.NWWSResource,
			RoomDomain:   nwwsRoomDomain,
			RoomNickname: fmt.Sprintf("alertwx-%s", uuid.NewString()[:8]),
		}, ingestHandler(processor, clock, cfg.FilterStates, cfg.TargetPhenomena, logger), logger, metrics)
	} else {
		logger.Warn("NWWS_USERNAME not set, running on REST polling only")
	}

	fanout := broker.New(manager, clock, logger, metrics)

	readySrv := httpadapter.NewServer(cfg.HTTPAddr, poller, logger)

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", fanout)
	wsServer := &http.Server{
		Addr:         cfg.BrokerAddr,
		Handler:      wsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // subscriber connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := readySrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()
	go func() {
		logger.Info("broker server starting", "addr", cfg.BrokerAddr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("broker server error", "err", err)
		}
	}()
	go manager.Run(ctx)
	go fanout.Run(ctx)
	go func() {
		if err := poller.Run(ctx); err != nil {
			logger.Error("rest poller error", "err", err)
		}
	}()
	if nwwsClient != nil {
		go func() {
			if err := nwwsClient.Run(ctx); err != nil {
				logger.Error("nwws client error", "err", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if nwwsClient != nil {
		nwwsClient.Stop()
	}
	if err := readySrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("broker server shutdown error", "err", err)
	}
	if cfg.PersistAlerts {
		if err := manager.Save(); err != nil {
			logger.Error("failed to persist alerts", "err", err)
		}
	}
	if err := resolver.Save(); err != nil {
		logger.Error("failed to persist geometry cache", "err", err)
	}
	restClient.Close()

	logger.Info("shutdown complete")
}

// ingestHandler adapts the NWWS client's push callback to the shared
// processor, filling in the fields alertparse.RawProduct needs that
// nwws.RawProduct doesn't carry directly.
func ingestHandler(processor *pipeline.Processor, clock clockwork.Clock, filterStates, targetPhenomena []string, logger *slog.Logger) nwws.Handler {
	return func(rp nwws.RawProduct) {
		err := processor.Process(context.Background(), alertparse.RawProduct{
			Text:            rp.Text,
			MessageID:       rp.MessageID,
			AWIPSID:         rp.AWIPSID,
			TTAAII:          rp.TTAAII,
			Office:          rp.Office,
			Source:          "nwws",
			ParsedAt:        clock.Now(),
			FilterStates:    filterStates,
			TargetPhenomena: targetPhenomena,
		})
		if err != nil {
			logger.Error("failed to process nwws product", "message_id", rp.MessageID, "err", err)
		}
	}
}
