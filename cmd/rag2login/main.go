package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rag2login/internal/accounts"
	"rag2login/internal/config"
	"rag2login/internal/handlers"
	"rag2login/internal/protocol"
	"rag2login/internal/server"
)

func main() {
	cfg, err := config.LoadConfig("rag2login.ini")
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(2)
	}

	store, err := buildAccountStore(cfg.Database)
	if err != nil {
		log.Printf("Failed to initialize account store: %v", err)
		os.Exit(2)
	}

	registry := protocol.NewHandlerRegistry()
	registry.Register(&handlers.AccountLoginHandler{Store: store})
	registry.Register(&handlers.PingHandler{})
	dispatcher := protocol.NewDispatcher(registry)

	rsaKey, rsaPubDER, err := protocol.GenerateRSAKeypair(cfg.RSA.KeyBits)
	if err != nil {
		log.Printf("Failed to generate RSA keypair: %v", err)
		os.Exit(2)
	}

	loginServer := server.NewLoginServer(cfg.Login.IP, cfg.Login.Port, rsaKey, rsaPubDER, dispatcher)

	go func() {
		if err := loginServer.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("[Login] Server started on %s:%d\n", cfg.Login.IP, cfg.Login.Port)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("\n[Login] Shutting down server...")
	loginServer.Stop()
}

// buildAccountStore returns a MySQL-backed store when a database is
// configured, or an in-memory store otherwise. The login server core never
// depends on this choice; only the registered AccountLoginHandler does.
func buildAccountStore(cfg config.DatabaseConfig) (accounts.Store, error) {
	if cfg.IP == "" {
		log.Println("[Login] no [Database] section configured, using in-memory account store")
		return accounts.NewMemoryStore(nil), nil
	}

	store, err := accounts.NewMySQLStore(accounts.MySQLConfig{
		IP:       cfg.IP,
		Port:     cfg.Port,
		UserName: cfg.UserName,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, err
	}
	fmt.Printf("[Database] Connected to MySQL at %s:%d\n", cfg.IP, cfg.Port)
	return store, nil
}
