package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xelth-com/examroom/internal/buildinfo"
	"github.com/xelth-com/examroom/internal/config"
	"github.com/xelth-com/examroom/internal/database"
	"github.com/xelth-com/examroom/internal/graph"
	"github.com/xelth-com/examroom/internal/handlers"
	"github.com/xelth-com/examroom/internal/models"
	"github.com/xelth-com/examroom/internal/sync"
	"github.com/xelth-com/examroom/internal/utils"
	"github.com/xelth-com/examroom/internal/websocket"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a relay token for this client id and exit")
	dataDir := flag.String("data", "./data", "directory for the relay identity file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *issueToken != "" {
		token, err := utils.GenerateRelayToken(*issueToken, cfg.Relay.Secret, cfg.Relay.TokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	log.Printf("🚀 %s", buildinfo.Summary("examroom relay"))

	identity, err := utils.LoadOrGenerateRelayIdentity(cfg.Relay.InstanceID, *dataDir)
	if err != nil {
		log.Printf("⚠️ Relay identity not persisted: %v", err)
	}

	// 2. Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("✅ Schema synchronized successfully")

	// 4. Restore the graph from the journal
	g := graph.New()
	clock := graph.NewClock()
	journal := sync.NewJournal(db.DB)
	if _, err := journal.Load(context.Background(), g, clock); err != nil {
		log.Fatalf("Failed to restore graph: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	opts := websocket.HubOptions{
		InstanceID: identity.InstanceID,
		Graph:      g,
		Clock:      clock,
		Journal:    journal,
	}
	routerOpts := handlers.RouterOptions{
		Secret:   cfg.Relay.Secret,
		Database: db,
	}

	// 5. Optional peer relays over Redis
	var bridge *sync.PeerBridge
	if cfg.Relay.RedisURL != "" {
		bridge, err = sync.NewPeerBridge(cfg.Relay.RedisURL, cfg.Relay.Cluster, identity.InstanceID)
		if err != nil {
			log.Fatalf("Failed to init peer bridge: %v", err)
		}
		opts.Publisher = bridge
		routerOpts.Peers = bridge
	}

	hub := websocket.NewHub(opts)
	go hub.Run(ctx)

	if bridge != nil {
		go func() {
			if err := bridge.Run(ctx, hub.ApplyRemote); err != nil {
				log.Printf("❌ Peer bridge stopped: %v", err)
			}
		}()
	}

	// 6. HTTP surface
	router := handlers.NewRouter(hub, routerOpts)
	var handler http.Handler = router
	if prefix := strings.TrimRight(cfg.Relay.PathPrefix, "/"); prefix != "" {
		handler = http.StripPrefix(prefix, router)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Relay.Port,
		Handler: handler,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Relay %s starting on port %s [Prefix: '%s']", identity.InstanceID, cfg.Relay.Port, cfg.Relay.PathPrefix)
		if cfg.Relay.Secret == "" {
			log.Println("⚠️ RELAY_SECRET is empty: the relay accepts any client")
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("⚠️  Received signal: %v. Shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	stop()
	<-hub.Done()

	if bridge != nil {
		if err := bridge.Close(); err != nil {
			log.Printf("Peer bridge close error: %v", err)
		}
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
