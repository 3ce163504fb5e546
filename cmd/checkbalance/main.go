// cmd/checkbalance — one-shot account inspection.
//
// Connects to the broker with the same configuration as the daemon and
// prints the cash balance and current holdings. Refuses to run against
// the real-money environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jaengyi/RedArrow/config"
	"github.com/jaengyi/RedArrow/internal/broker"
	"github.com/jaengyi/RedArrow/internal/broker/kis"
	"github.com/jaengyi/RedArrow/pkg/kisconnect"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Mode != config.ModeSimulation {
		fmt.Fprintf(os.Stderr, "checkbalance only runs in simulation mode (current: %s)\n", cfg.Mode)
		os.Exit(1)
	}

	var gw broker.Gateway
	if cfg.Broker.AppKey == "" || cfg.Broker.AppSecret == "" {
		fmt.Println("no broker credentials set, showing paper account")
		gw = broker.NewPaperGateway(time.Now().UnixNano(), 10_000_000, cfg.Engine.HistoryDays)
	} else {
		gw = kis.New(kisconnect.New(kisconnect.Config{
			AppKey:    cfg.Broker.AppKey,
			AppSecret: cfg.Broker.AppSecret,
			AccountNo: cfg.Broker.AccountNo,
			BaseURL:   cfg.Broker.BaseURL,
			Paper:     true,
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gw.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer gw.Disconnect()

	bal, err := gw.AccountBalance(ctx)
	if err != nil {
		log.Fatalf("balance: %v", err)
	}
	positions, err := gw.Positions(ctx)
	if err != nil {
		log.Fatalf("positions: %v", err)
	}

	fmt.Printf("cash available : %14.0f KRW\n", bal.AvailableAmount)
	fmt.Printf("stock valuation: %14.0f KRW\n", bal.StockEvalAmount)
	fmt.Printf("total assets   : %14.0f KRW\n", bal.TotalAssets)
	fmt.Println()

	if len(positions) == 0 {
		fmt.Println("no holdings")
		return
	}
	fmt.Printf("%-8s %-20s %8s %12s %12s %10s\n", "symbol", "name", "qty", "avg price", "current", "pnl %")
	for _, p := range positions {
		pnl := 0.0
		if p.EntryPrice > 0 {
			pnl = (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
		}
		fmt.Printf("%-8s %-20s %8d %12.0f %12.0f %+9.2f%%\n",
			p.Symbol, p.Name, p.Quantity, p.EntryPrice, p.CurrentPrice, pnl)
	}
}
