package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tiziaco/intelli-trader/internal/engine"
	"github.com/tiziaco/intelli-trader/internal/market"
	"github.com/tiziaco/intelli-trader/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	portfolios, err := config.LoadPortfolios(cfg.PortfoliosFile)
	if err != nil {
		log.Printf("portfolios: %v; using defaults", err)
		portfolios = config.DefaultPortfolios()
	}

	eng, err := engine.New(cfg, portfolios)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.UseMockFeed {
		feed := &market.MockFeed{
			Bus:      eng.Bus,
			Tickers:  cfg.Tickers,
			Interval: cfg.BarInterval,
		}
		feed.Start(ctx)
		log.Printf("market: mock feed started (%v interval, tickers=%v)", cfg.BarInterval, cfg.Tickers)
	}

	go eng.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down...")
	eng.Snapshot(time.Now())
	cancel()
	<-eng.Bus.Done()
}
