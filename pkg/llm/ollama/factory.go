package ollama

import (
	"log"

	"seeker/pkg/config"
	"seeker/pkg/llm"
)

// OllamaFactory handles creation of Ollama Clients
type OllamaFactory struct{}

// Create implements ProviderFactory
func (f *OllamaFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	for _, model := range cfg.Models {
		client, err := NewOllamaClient(model, cfg.BaseURL, cfg.Options)
		if err != nil {
			log.Printf("Failed to create Ollama client for model %s: %v", model, err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
