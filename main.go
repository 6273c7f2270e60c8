package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"seeker/pkg/agent"
	"seeker/pkg/api"
	"seeker/pkg/channels"
	_ "seeker/pkg/channels/telegram" // register channel factories
	"seeker/pkg/config"
	"seeker/pkg/llm"
	_ "seeker/pkg/llm/autoload" // register LLM providers
	"seeker/pkg/memory"
	"seeker/pkg/monitor"
	"seeker/pkg/search"
)

func main() {
	// Secrets live in .env; missing file is fine.
	godotenv.Load()

	cfg, sysCfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}
	cfg.ApplyEnv()

	monitor.PrintBanner()
	monitor.SetupSlog(sysCfg.LogLevel)

	client, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		log.Fatalf("❌ Failed to init LLM client: %v\n", err)
	}

	provider, err := search.NewProviderFromConfig(cfg.Search)
	if err != nil {
		log.Fatalf("❌ Failed to init search provider: %v\n", err)
	}
	gateway := search.NewGateway(provider, time.Duration(sysCfg.SearchTimeoutMs)*time.Millisecond)

	store := memory.NewStore(sysCfg.StorageDir)

	engine := agent.NewEngine(client, time.Duration(sysCfg.LLMTimeoutMs)*time.Millisecond)
	controller := agent.NewController(engine, gateway, store, *sysCfg, cfg.SystemPrompt)

	started := channels.LoadFromConfig(controller, cfg.Channels, sysCfg)

	server := api.NewServer(controller, store, sysCfg.HTTPPort)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("❌ HTTP server error: %v\n", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("\nReceived shutdown signal. Stopping services...")

	for _, ch := range started {
		if err := ch.Stop(); err != nil {
			log.Printf("Failed to stop channel %s: %v\n", ch.ID(), err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Stop(shutdownCtx)
	log.Println("Bye!")
}
