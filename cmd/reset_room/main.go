package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/xelth-com/examroom/internal/approval"
	"github.com/xelth-com/examroom/internal/config"
	"github.com/xelth-com/examroom/internal/store"
	"github.com/xelth-com/examroom/internal/utils"
)

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "how long to wait for a relay to accept the reset")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	relay := store.NewRelayStore(store.RelayOptions{
		Peers:    cfg.Client.Peers,
		Token:    cfg.Client.RelayToken,
		ClientID: utils.NewClientID("reset"),
	})
	defer relay.Close()

	registry := approval.NewRegistry(relay, cfg.Client.Room)
	registry.Open()
	defer registry.Close()

	if err := registry.ClearAll(); err != nil {
		log.Fatalf("Failed to clear room: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := relay.Flush(ctx); err != nil {
		log.Fatalf("❌ Reset not confirmed by any relay: %v", err)
	}

	log.Printf("✅ Cleared all access requests in room %s", cfg.Client.Room)
}
