package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
	"github.com/ajitpratap0/cryptofunk/internal/config"
	"github.com/ajitpratap0/cryptofunk/internal/fiatrate"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
)

// buildVenueClients constructs EX-K and EX-U clients from the resolved
// credentials in cfg.Venues, wrapping each in the paper-trading decorator
// when the engine runs in dry-run mode.
func buildVenueClients(cfg *config.Config, log zerolog.Logger) (venue.Client, venue.Client, error) {
	exkCreds := cfg.Venues["exk"]
	exuCreds := cfg.Venues["exu"]

	var exk venue.Client = venue.NewExkLive(exkCreds.APIKey, exkCreds.SecretKey)
	var exu venue.Client = venue.NewBinanceLive(exuCreds.APIKey, exuCreds.SecretKey, exuCreds.Testnet)

	if cfg.App.DryRun {
		transferDelay := time.Duration(cfg.Trading.TransferTimeoutMinutes) * time.Minute / 3
		exkPaper := venue.NewPaper(exk, cfg.Store.DryRunPath+".exk", transferDelay)
		exuPaper := venue.NewPaper(exu, cfg.Store.DryRunPath+".exu", transferDelay)
		exkPaper.SetCounterpart(exuPaper)
		exuPaper.SetCounterpart(exkPaper)
		exk, exu = exkPaper, exuPaper
		log.Info().Str("ledger_path", cfg.Store.DryRunPath).Msg("dry-run mode: wrapping venues in paper decorator")
	}

	return exk, exu, nil
}

// buildFiatService wires the USD->KRW rate provider, backed by an optional
// Redis cache when cfg.Redis.Host is configured.
func buildFiatService(cfg *config.Config) *fiatrate.Service {
	providers := []fiatrate.Provider{fiatrate.NewCoinGeckoProvider("")}

	var cache *fiatrate.RedisCache
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = fiatrate.NewRedisCache(client, time.Duration(cfg.Fiat.CacheDurationSec)*time.Second)
	}

	return fiatrate.New(
		providers,
		time.Duration(cfg.Fiat.CacheDurationSec)*time.Second,
		time.Duration(cfg.Fiat.StalenessCeilingSec)*time.Second,
		cache,
	)
}

// buildAlertManager wires Telegram alerting when credentials are present,
// always keeping the log and console alerters as a baseline fan-out.
func buildAlertManager(cfg *config.Config, log zerolog.Logger) *alerts.Manager {
	alerters := []alerts.Alerter{alerts.NewLogAlerter(), alerts.NewConsoleAlerter()}

	if cfg.Alerts.TelegramBotToken != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatIDs)
		if err != nil {
			log.Warn().Err(err).Msg("telegram alerter init failed, continuing with log/console only")
		} else {
			alerters = append(alerters, tg)
		}
	}

	return alerts.NewManager(alerters...)
}
