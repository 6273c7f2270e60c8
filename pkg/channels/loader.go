package channels

import (
	"log/slog"

	jsoniter "github.com/json-iterator/go"

	"seeker/pkg/agent"
	"seeker/pkg/config"
)

// LoadFromConfig walks the configured channel map, resolves factories and
// starts the resulting channels. Unknown or failing channels are skipped
// with a log entry; they never stop the service.
func LoadFromConfig(controller *agent.Controller, configs map[string]jsoniter.RawMessage, system *config.SystemConfig) []Channel {
	var started []Channel
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, controller, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}
		if channel == nil {
			continue
		}

		if err := channel.Start(); err != nil {
			slog.Error("Failed to start channel", "name", name, "error", err)
			continue
		}

		started = append(started, channel)
		slog.Info("Channel started", "name", name)
	}
	return started
}
