package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/infrastructure/db"
	"breakout-backend/internal/infrastructure/fcm"
	"breakout-backend/internal/infrastructure/news"
	"breakout-backend/internal/infrastructure/oanda"
	"breakout-backend/internal/infrastructure/providers"
	"breakout-backend/internal/infrastructure/stream"
	"breakout-backend/internal/repository"
	"breakout-backend/internal/usecase"

	wsdelivery "breakout-backend/internal/delivery/websocket"
)

func main() {
	cfg := domain.DefaultConfig()
	cfg.LoadEnv()
	if err := cfg.Validate(true); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Persistence: Postgres when DATABASE_URL is set, memory otherwise.
	var tradeRepo domain.TradeRepository
	var tokenRepo *repository.TokenRepository
	var pgRepo *repository.PostgresTradeRepository
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := db.NewPool(ctx, dbURL, db.PoolConfigFromEnv())
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal(err)
		}
		pgRepo = repository.NewPostgresTradeRepository(pool)
		tradeRepo = pgRepo
		tokenRepo = repository.NewTokenRepository(pool)
		log.Println("Using Postgres persistence")
	} else {
		tradeRepo = repository.NewInMemoryTradeRepository()
		tokenRepo = repository.NewTokenRepository(nil)
		log.Println("Using in-memory persistence")
	}

	// 2. Broker. Market data comes from OANDA even in paper mode.
	broker, err := oanda.NewClient(cfg.Oanda)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Notifications.
	fcmClient, err := fcm.NewClient()
	if err != nil {
		log.Printf("FCM disabled: %v", err)
	}
	notifier := usecase.NewNotifier(fcmClient, tokenRepo)

	// 4. News calendar with a background refresher.
	calendar := news.NewCalendar(cfg.News.CloseBeforeMinutes, cfg.News.AvoidAfterMinutes)
	go news.NewRefresher(calendar, cfg.News.MonitoredCurrencies).Run(ctx)

	// 5. Entry rules and position monitor.
	streak := usecase.NewLossStreak(cfg)
	rules := usecase.NewRuleEngine(cfg,
		usecase.NewSessionFilter(cfg),
		usecase.NewCorrelationFilter(cfg),
		streak, calendar)

	monitor := usecase.NewMonitor(cfg, broker, broker, calendar, tradeRepo, streak, notifier)
	monitor.Start()

	// 6. Signal generator scanning every minute.
	generator := usecase.NewSignalGenerator(cfg, broker, rules, tradeRepo, monitor, notifier)
	go generator.Run(ctx, time.Minute)

	// 7. Optional streamed quotes feeding the monitor's price cache.
	if streamURL := os.Getenv("PRICE_STREAM_URL"); streamURL != "" {
		ps := stream.NewPriceStream(streamURL, cfg.Pairs.AllowedPairs)
		go ps.Run(ctx)
		go func() {
			for t := range ps.Ticks() {
				monitor.PushQuote(usecase.Tick{
					Instrument: t.Instrument,
					Bid:        t.Bid,
					Ask:        t.Ask,
					Time:       t.Time,
				})
			}
		}()
	}

	// 8. Hourly equity snapshots when Postgres is available.
	if pgRepo != nil {
		go recordEquity(ctx, pgRepo, broker, cfg)
	}

	// 9. External signal feed, advisory only.
	webhook := providers.NewWebhookProvider()
	registry := usecase.NewProviderRegistry(webhook)
	go watchExternalSignals(ctx, registry)

	// 10. HTTP delivery.
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsdelivery.NewHandler(cfg, tradeRepo, streak).Handle)
	mux.HandleFunc("/api/signals", webhook.Handle)
	mux.HandleFunc("/api/tokens", tokenHandler(tokenRepo))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("Server listening on %s (strategy %s, paper=%v)", addr, cfg.Strategy, cfg.PaperTrading)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	monitor.Stop()
	log.Println("Goodbye")
}

// recordEquity samples the account balance and open-position count into the
// equity history once an hour.
func recordEquity(ctx context.Context, pg *repository.PostgresTradeRepository, broker *oanda.Client, cfg *domain.Config) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			balance := cfg.VirtualBalance
			if !cfg.PaperTrading {
				b, err := broker.Balance(ctx)
				if err != nil {
					log.Printf("equity snapshot: %v", err)
					continue
				}
				balance = b
			}
			if err := pg.RecordEquitySnapshot(balance, len(pg.Open())); err != nil {
				log.Printf("equity snapshot: %v", err)
			}
		}
	}
}

// watchExternalSignals surfaces confident third-party signals in the logs so
// they can be compared against what the generator is doing.
func watchExternalSignals(ctx context.Context, registry *usecase.ProviderRegistry) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range registry.FetchConfident(ctx, 0.7) {
				log.Printf("📡 External signal: %s %s %s (%.2f)", s.Provider, s.Instrument, s.Direction, s.Confidence)
			}
		}
	}
}

func tokenHandler(tokens *repository.TokenRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token    string `json:"token"`
			Platform string `json:"platform"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			http.Error(w, "token required", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodPost:
			tokens.SaveToken(body.Token, body.Platform)
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			tokens.RemoveToken(body.Token)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
