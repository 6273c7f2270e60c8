package telegram

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"seeker/pkg/agent"
	"seeker/pkg/channels"
	"seeker/pkg/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory builds Telegram channels from raw channel config.
type TelegramFactory struct{}

// Create implements channels.ChannelFactory.
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, controller *agent.Controller, system *config.SystemConfig) (channels.Channel, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}
	return NewTelegramChannel(tgCfg, controller)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
