// Command arbengine runs the cross-exchange arbitrage engine: it wires
// venue clients, the fiat-rate service, the premium calculator, the risk
// manager, the strategy driver, and the orchestrator's monitor loops, then
// blocks until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/analytics"
	"github.com/ajitpratap0/cryptofunk/internal/audit"
	"github.com/ajitpratap0/cryptofunk/internal/config"
	"github.com/ajitpratap0/cryptofunk/internal/db"
	"github.com/ajitpratap0/cryptofunk/internal/metrics"
	"github.com/ajitpratap0/cryptofunk/internal/observer"
	"github.com/ajitpratap0/cryptofunk/internal/orchestrator"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, "json")
	log := config.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var vaultClient *vault.Client
	if cfg.Vault.Enabled {
		vaultClient, err = vault.NewClient(vault.Config{Address: cfg.Vault.Address})
		if err != nil {
			log.Warn().Err(err).Msg("vault client init failed, falling back to env-only credentials")
		}
	}
	var vaultLoader config.VaultSecretLoader
	if vaultClient != nil {
		vaultLoader = vaultClient
	}
	config.LoadVenueCredentials(ctx, cfg, vaultLoader)

	exk, exu, err := buildVenueClients(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to construct venue clients")
		os.Exit(1)
	}

	fiatSvc := buildFiatService(cfg)
	alertMgr := buildAlertManager(cfg, log)

	riskMgr := risk.NewManager(risk.Limits{
		MaxSingleTradeKrw:  decimal.NewFromFloat(cfg.Risk.MaxSingleTradeKrw),
		MaxDailyVolumeKrw:  decimal.NewFromFloat(cfg.Risk.MaxDailyVolumeKrw),
		MaxConcurrent:      cfg.Risk.MaxConcurrent,
		MaxSlippagePct:     decimal.NewFromFloat(cfg.Risk.MaxSlippagePct),
		EmergencyLossPct:   decimal.NewFromFloat(cfg.Risk.EmergencyLossPct),
		MinVenueBalanceKrw: decimal.NewFromFloat(cfg.Risk.MinVenueBalanceKrw),
		MaxExposurePct:     decimal.NewFromFloat(cfg.Risk.MaxExposurePct),
	}, time.Now)
	defer riskMgr.Close()

	calc := premium.New(exk, exu, fiatSvc, premium.DefaultFeeSchedule())
	driver := strategy.NewDriver(exk, exu, riskMgr, alertMgr, strategy.NewRealClock())
	driver.TransferTimeout = time.Duration(cfg.Trading.TransferTimeoutMinutes) * time.Minute

	an := analytics.New()

	var auditLogger *audit.Logger
	var database *db.DB
	if !cfg.App.DryRun {
		database, err = db.New(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, proceeding without audit persistence")
		}
	}
	if database != nil {
		auditLogger = audit.NewLogger(database.Pool(), true)
		defer database.Close()
	}

	sinks := []observer.Sink{observer.NewLogSink(log)}
	if cfg.Alerts.TelegramBotToken != "" {
		sinks = append(sinks, observer.NewTelegramSink(alertMgr))
	}
	obs := observer.NewBus(log, sinks...)

	orchCfg := orchestrator.Config{
		MonitorCoins:            cfg.Trading.MonitorCoins,
		PriceUpdateInterval:     time.Duration(cfg.Trading.PriceUpdateIntervalSec) * time.Second,
		UniverseRefreshInterval: time.Duration(cfg.Trading.UniverseRefreshMinutes) * time.Minute,
		MetricsInterval:         30 * time.Second,
		HealthInterval:          60 * time.Second,
		SafetyMarginPct:         decimal.NewFromFloat(cfg.Trading.SafetyMarginPct),
		MinTradeAmountKrw:       decimal.NewFromFloat(cfg.Trading.MinTradeAmountKrw),
		MaxTradeAmountKrw:       decimal.NewFromFloat(cfg.Trading.MaxTradeAmountKrw),
		MinVenueBalanceKrw:      decimal.NewFromFloat(cfg.Risk.MinVenueBalanceKrw),
	}

	orch := orchestrator.New(exk, exu, fiatSvc, calc, riskMgr, driver, an, obs, auditLogger, alertMgr, orchCfg, log)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, log)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start metrics server")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsServer.Shutdown(shutdownCtx)
			}()
		}
	}

	if auditLogger != nil {
		_ = auditLogger.LogEngineLifecycle(ctx, audit.EventTypeEngineStart, true, "")
	}
	log.Info().
		Bool("dry_run", cfg.App.DryRun).
		Str("environment", cfg.App.Environment).
		Msg("arbengine starting")

	if err := orch.Run(ctx); err != nil {
		log.Error().Err(err).Msg("orchestrator exited with error")
		if auditLogger != nil {
			_ = auditLogger.LogEngineLifecycle(context.Background(), audit.EventTypeEngineStop, false, err.Error())
		}
		os.Exit(1)
	}

	if auditLogger != nil {
		_ = auditLogger.LogEngineLifecycle(context.Background(), audit.EventTypeEngineStop, true, "")
	}
	log.Info().Msg("arbengine stopped")
}
