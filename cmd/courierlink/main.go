package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courierlink/agent"
	"courierlink/api"
	"courierlink/config"
	"courierlink/events"
	"courierlink/protocol"
	"courierlink/queue"
	"courierlink/realtime"
	"courierlink/store"
	"courierlink/www"
)

func main() {
	configPath := flag.String("config", "courierlink.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "console HTTP port (overrides config)")
	hashPasscode := flag.String("hash-passcode", "", "print the bcrypt hash for a console passcode and exit")
	flag.Parse()

	if *hashPasscode != "" {
		hash, err := www.HashPasscode(*hashPasscode)
		if err != nil {
			log.Fatalf("hash passcode: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}
	if cfg.ShipperID == "" {
		log.Fatalf("shipper_id is not set in %s", *configPath)
	}

	// Open database
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	bus := events.NewBus()

	// Backend client, offline queue, agent core
	client := api.NewClient(&cfg.API)
	q := queue.New(db, client, bus)
	mgr := agent.New(agent.Config{
		DB:        db,
		Backend:   client,
		Queue:     q,
		Bus:       bus,
		ShipperID: cfg.ShipperID,
	})

	// Realtime channel feeding the protocol ingestor
	ingestor := protocol.NewIngestor(mgr, nil)
	channel := realtime.New(&cfg.Realtime, cfg.ShipperID, cfg.ClientID(), ingestor.HandleRaw, bus)
	channel.Connect()
	defer channel.Disconnect()

	// Background drainer; kicked immediately whenever the link comes back
	drainer := queue.NewDrainer(q, channel, cfg.Queue.DrainInterval)
	bus.SubscribeTypes(func(evt events.Event) {
		if ce, ok := evt.Payload.(events.ConnectionEvent); ok && ce.State == string(realtime.StateConnected) {
			drainer.Kick()
		}
	}, events.EventConnection)
	drainer.Start()
	defer drainer.Stop()

	// Warm the local order cache
	go func() {
		if _, err := mgr.RefreshOrders(context.Background()); err != nil {
			log.Printf("initial order refresh: %v", err)
		}
	}()

	// Diagnostics console
	router, stopWeb := www.NewRouter(cfg, mgr, q, channel, bus)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("CourierLink console listening on %s (shipper=%s)", addr, cfg.ShipperID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop SSE event hub first so long-lived connections close
	stopWeb()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
