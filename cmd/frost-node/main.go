package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"frost-node/api"
	"frost-node/api/handlers"
	"frost-node/internal/config"
	"frost-node/internal/keys"
	"frost-node/internal/logger"
	"frost-node/internal/party"
	"frost-node/internal/signing"
	"frost-node/internal/storage"
	"frost-node/internal/storage/models"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	var db *gorm.DB
	if cfg.Database.Host != "" {
		db, err = storage.InitDB(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		log.Info("Database connection established and schema migrated")
	} else {
		log.Warn("No database configured; running in-memory only")
	}

	registry := party.NewRegistry(log)
	for _, p := range cfg.Parties {
		registered, err := registry.Register(p.Name, p.Endpoint, p.PublicKey, p.Address, p.Stake)
		if err != nil {
			log.Fatalf("Failed to register configured party %s: %v", p.Name, err)
		}
		if db != nil {
			row := models.Party{
				PartyID:   registered.ID,
				Index:     registered.Index,
				Endpoint:  registered.Endpoint,
				PublicKey: registered.PublicKey,
				Address:   registered.Address,
				Stake:     registered.Stake,
				Active:    true,
			}
			if err := db.Where(models.Party{PartyID: registered.ID}).Assign(row).FirstOrCreate(&row).Error; err != nil {
				log.WithError(err).WithField("party", registered.ID).Error("Failed to persist party record")
			}
		}
	}

	keyManager := keys.NewManager(registry, db, log)
	coordinator := signing.NewCoordinator(registry, keyManager, signing.Options{
		SessionTimeout: time.Duration(cfg.Protocol.SessionTimeoutSeconds) * time.Second,
		SweepInterval:  time.Duration(cfg.Protocol.SweepIntervalSeconds) * time.Second,
		Retention:      time.Duration(cfg.Protocol.SessionRetentionSeconds) * time.Second,
	}, log)
	coordinator.Start()
	defer coordinator.Stop()

	handler := handlers.New(keyManager, coordinator, registry, log)
	router := api.SetupRouter(handler)

	addr := cfg.ServerPort
	if addr == "" {
		addr = ":8080"
	}
	log.Infof("Starting API server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("API server exited: %v", err)
	}
}
