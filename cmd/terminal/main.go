package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tiendapos/client/internal/backend"
	"tiendapos/client/internal/checkout"
	"tiendapos/client/internal/config"
	"tiendapos/client/internal/httpapi"
	"tiendapos/client/internal/journal"
	"tiendapos/client/internal/session"
)

func main() {
	cfg := config.Load()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var snapshots session.Store
	if cfg.RedisAddr != "" {
		redisStore := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.SnapshotTTLHours)*time.Hour)
		if err := redisStore.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory snapshots", err)
			snapshots = session.NewMemoryStore()
		} else {
			snapshots = redisStore
			closers = append(closers, redisStore.Close)
			log.Println("snapshots: redis")
		}
	} else {
		snapshots = session.NewMemoryStore()
		log.Println("snapshots: in-memory")
	}

	var jrnl journal.Journal
	if cfg.DatabaseURL != "" {
		pg, err := journal.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory journal", err)
		}
		jrnl = pg
		closers = append(closers, pg.Close)
		log.Println("journal: postgres")
	} else {
		jrnl = journal.NewMemoryJournal()
		log.Println("journal: in-memory")
	}

	var pinHash []byte
	if cfg.SupervisorPIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.SupervisorPIN), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash supervisor pin: %v", err)
		}
		pinHash = hash
	}

	client := backend.New(cfg.BackendBaseURL, cfg.BackendToken, cfg.ShopID, cfg.DefaultGroupID)
	sess := checkout.NewSession(checkout.Config{
		ShopID:               cfg.ShopID,
		EmployeeID:           cfg.EmployeeID,
		ForAllShops:          cfg.ForAllShops,
		AllowOutOfStockSales: cfg.AllowOutOfStockSales,
		SupervisorPINHash:    pinHash,
	}, client, snapshots, jrnl)

	if restored, err := sess.Restore(ctx); err != nil {
		log.Printf("cart restore failed: %v", err)
	} else if restored {
		log.Printf("restored open ticket for shop %d", cfg.ShopID)
	}

	api := httpapi.New(sess, jrnl, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("till engine listening on %s (shop %d)", cfg.Address(), cfg.ShopID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("till engine stopped")
}

func validateConfig(cfg config.Config) error {
	if cfg.BackendBaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be set")
	}
	if cfg.BackendToken == "" {
		return fmt.Errorf("BACKEND_TOKEN must be set")
	}
	if cfg.ShopID < 1 {
		return fmt.Errorf("SHOP_ID must be a positive id")
	}
	return nil
}
