package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emberhold.gg/internal/config"
	"emberhold.gg/internal/game/trade"
	persistlog "emberhold.gg/internal/persistence/log"
	"emberhold.gg/internal/persistence/playerdb"
	"emberhold.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "", "path to server.yaml (optional)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		seedDemo   = flag.Bool("seed_demo", true, "seed demo players into an empty database")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	db, err := playerdb.Open(cfg.DBPath, playerdb.DefaultMaxSlots)
	if err != nil {
		logger.Fatalf("open player db: %v", err)
	}
	defer db.Close()
	if *seedDemo {
		if err := seedDemoPlayers(db, logger); err != nil {
			logger.Fatalf("seed demo players: %v", err)
		}
	}

	audit := persistlog.NewTradeAudit(cfg.DataDir, logger)
	defer audit.Close()

	tradeLogger := log.New(os.Stdout, "[trade] ", log.LstdFlags|log.Lmicroseconds)
	hub := ws.NewHub(db, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	exec := trade.NewExecutor(db, db, audit, tradeLogger)
	reg := trade.NewRegistry(trade.Config{
		Allow:         cfg.Trade.Allow,
		MaxOfferSlots: cfg.Trade.MaxOfferSlots,
	}, db, db, hub, hub, exec, tradeLogger)

	srv := ws.NewServer(hub, reg, db, db,
		time.Duration(cfg.Trade.RequestWindowSecs)*time.Second, cfg.Trade.RequestMax,
		logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", srv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Janitor: abandoned sessions are cancelled, nobody else polls liveness.
	if cfg.Trade.IdleTimeoutSecs > 0 {
		maxIdle := time.Duration(cfg.Trade.IdleTimeoutSecs) * time.Second
		go func() {
			t := time.NewTicker(30 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n := reg.ReapIdle(maxIdle); n > 0 {
						logger.Printf("reaped %d idle trade session(s)", n)
					}
				}
			}
		}()
	}

	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// seedDemoPlayers gives a fresh database a pair of stocked accounts so the
// trade flow can be exercised end to end out of the box.
func seedDemoPlayers(db *playerdb.DB, logger *log.Logger) error {
	empty, err := db.Empty()
	if err != nil || !empty {
		return err
	}
	type demoItem struct {
		slot   int
		itemID string
		qty    int
	}
	seed := []struct {
		name  string
		gold  int64
		items []demoItem
	}{
		{"alice", 100, []demoItem{{1, "IRON_INGOT", 5}, {2, "PLANK", 20}}},
		{"bob", 60, []demoItem{{1, "STONE", 12}}},
	}
	for _, p := range seed {
		id, _, err := db.Login(p.name)
		if err != nil {
			return err
		}
		db.AddGold(id, p.gold)
		for _, it := range p.items {
			if err := db.SetSlot(id, it.slot, it.itemID, it.qty); err != nil {
				return err
			}
		}
	}
	logger.Printf("seeded %d demo players", len(seed))
	return nil
}
