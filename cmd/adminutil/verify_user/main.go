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
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/user"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

// verify_user records an identity attestation on a user's profile.
// Usage:
//
//	go run ./cmd/adminutil/verify_user -identity alice -attestation sas:attest:123
func main() {
	identity := flag.String("identity", "", "Identity of the profile to verify")
	attestation := flag.String("attestation", "", "Reference to the external attestation")
	flag.Parse()

	if *identity == "" || *attestation == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/verify_user -identity <identity> -attestation <ref>")
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

	ledger := wallet.NewLedger()
	registry := marketplace.NewRegistry(store, ledger, logger)
	tracker := user.NewTracker(store, registry, ledger, logger, metrics.New())

	// The attestation is issued to the profile owner, so the owner is the actor.
	p, err := tracker.ApplyVerification(ctx, *identity, *identity, *attestation)
	if err != nil {
		log.Fatalf("failed to verify user: %v", err)
	}

	fmt.Printf("User %s verified.\n", p.Identity)
}
