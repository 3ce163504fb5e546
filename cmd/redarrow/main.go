// cmd/redarrow — KRX momentum trading daemon.
//
// Runs the selection-and-risk trading loop against either the paper
// gateway (mode: simulation without credentials) or the KIS Open API.
// Exposes Prometheus metrics and a health endpoint, journals fills to
// SQLite, optionally mirrors live state to Redis, and writes end-of-day
// markdown reports.
//
// Usage:
//
//	redarrow -config config.yaml
//
// Credentials (env vars):
//
//	KIS_APP_KEY, KIS_APP_SECRET, KIS_ACCOUNT_NO  — broker
//	KIS_TOTP_SECRET                              — optional order OTP
//	TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID         — telegram alerts
//	ALERT_WEBHOOK_URL                            — webhook alerts
//	REDIS_PASSWORD                               — redis cache
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaengyi/RedArrow/config"
	"github.com/jaengyi/RedArrow/internal/broker"
	"github.com/jaengyi/RedArrow/internal/broker/kis"
	"github.com/jaengyi/RedArrow/internal/engine"
	"github.com/jaengyi/RedArrow/internal/logger"
	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/metrics"
	"github.com/jaengyi/RedArrow/internal/model"
	"github.com/jaengyi/RedArrow/internal/notification"
	"github.com/jaengyi/RedArrow/internal/report"
	"github.com/jaengyi/RedArrow/internal/store/redis"
	"github.com/jaengyi/RedArrow/internal/store/sqlite"
	"github.com/jaengyi/RedArrow/pkg/kisconnect"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config (missing file keeps defaults)")
	logLevel := flag.String("log-level", "info", "debug | info | warn | error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	logger.Init("redarrow", cfg.Mode, logger.ParseLevel(*logLevel))
	log.Printf("[main] starting, mode %s", cfg.Mode)

	if year := time.Now().In(markethours.KST).Year(); !markethours.HasHolidayCalendar(year) {
		log.Printf("[main] WARNING: no KRX holiday calendar for %d, the engine will trade through exchange holidays", year)
	}

	gw, kisClient := buildGateway(cfg)

	journal, err := sqlite.NewJournal(cfg.Store.SQLitePath)
	if err != nil {
		log.Fatalf("[main] journal: %v", err)
	}
	defer journal.Close()

	opts := engine.Options{Journal: journal}

	var cache *redis.Cache
	if cfg.Store.RedisAddr != "" {
		cache, err = redis.New(redis.CacheConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
		})
		if err != nil {
			log.Fatalf("[main] redis: %v", err)
		}
		defer cache.Close()
		opts.Cache = cache
	}

	opts.Notifier = buildNotifier(cfg)
	opts.Metrics = metrics.NewMetrics()
	opts.Health = metrics.NewHealthStatus()

	eng, err := engine.New(cfg, gw, opts)
	if err != nil {
		log.Fatalf("[main] engine: %v", err)
	}

	srv := metrics.NewServer(cfg.Metrics.Addr, opts.Health)
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter := report.NewWriter(journal, eng, cfg.Report.Dir, cfg.Report.Interval)
	go reporter.Run(ctx)

	if kisClient != nil && cache != nil {
		go runRealtimeFeed(ctx, kisClient, cache, eng)
	}

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[main] engine stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
	log.Printf("[main] shutdown complete")
}

// buildGateway picks the paper gateway unless real-mode credentials are
// present. Simulation with credentials still talks to the KIS paper
// trading environment. The client is nil for the paper gateway.
func buildGateway(cfg *config.Config) (broker.Gateway, *kisconnect.Client) {
	if cfg.Broker.AppKey == "" || cfg.Broker.AppSecret == "" {
		if cfg.Mode == config.ModeReal {
			log.Fatalf("[main] real mode requires KIS_APP_KEY and KIS_APP_SECRET")
		}
		log.Printf("[main] no broker credentials, using paper gateway")
		return broker.NewPaperGateway(time.Now().UnixNano(), 10_000_000, cfg.Engine.HistoryDays), nil
	}
	client := kisconnect.New(kisconnect.Config{
		AppKey:     cfg.Broker.AppKey,
		AppSecret:  cfg.Broker.AppSecret,
		AccountNo:  cfg.Broker.AccountNo,
		TOTPSecret: cfg.Broker.TOTPSecret,
		BaseURL:    cfg.Broker.BaseURL,
		Paper:      cfg.Mode != config.ModeReal,
	})
	return kis.New(client), client
}

// runRealtimeFeed mirrors the KIS execution stream into the redis quote
// cache for the symbols currently held, so dashboards see live prices
// between engine ticks. Subscriptions follow the open position set.
func runRealtimeFeed(ctx context.Context, client *kisconnect.Client, cache *redis.Cache, eng *engine.Engine) {
	rt := kisconnect.NewRealtime(client)
	rt.OnTick = func(tick kisconnect.Tick) {
		snap := model.Snapshot{
			Symbol:        tick.Symbol,
			Price:         tick.Price,
			Close:         tick.Price,
			Volume:        tick.Volume,
			TradingAmount: tick.Amount,
			TS:            time.Now().In(markethours.KST),
		}
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := cache.PublishSnapshots(pubCtx, []model.Snapshot{snap}); err != nil {
			log.Printf("[main] realtime cache publish: %v", err)
		}
	}
	rt.OnError = func(err error) { log.Printf("[main] realtime feed: %v", err) }

	if err := rt.Connect(ctx); err != nil {
		log.Printf("[main] realtime feed disabled: %v", err)
		return
	}
	defer rt.Close()
	log.Printf("[main] realtime feed connected")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			positions := eng.PositionsSnapshot()
			symbols := make([]string, 0, len(positions))
			for _, p := range positions {
				symbols = append(symbols, p.Symbol)
			}
			rt.SyncSubscriptions(symbols)
		}
	}
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	var backends []notification.Notifier
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	switch len(backends) {
	case 0:
		return notification.NewLogNotifier()
	case 1:
		return backends[0]
	default:
		return notification.NewMulti(backends...)
	}
}
