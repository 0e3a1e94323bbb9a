package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sudo-init-do/peerledger/internal/bootstrap"
	"github.com/sudo-init-do/peerledger/internal/config"
	"github.com/sudo-init-do/peerledger/internal/logging"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

// init_marketplace creates the marketplace singleton.
// Usage:
//
//	go run ./cmd/adminutil/init_marketplace -authority admin-1 -fee-rate 250
func main() {
	authority := flag.String("authority", "", "Identity that administers the marketplace")
	feeRate := flag.Int("fee-rate", -1, "Platform fee in basis points (0-10000)")
	flag.Parse()

	if *authority == "" || *feeRate < 0 {
		log.Fatalf("usage: go run ./cmd/adminutil/init_marketplace -authority <identity> -fee-rate <bps>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	registry := marketplace.NewRegistry(store, wallet.NewLedger(), logger)
	m, err := registry.Initialize(ctx, *authority, *feeRate)
	if err != nil {
		log.Fatalf("failed to initialize marketplace: %v", err)
	}

	fmt.Printf("Marketplace initialized by %s with fee rate %d bps.\n", m.Authority, m.FeeRate)
}
