package channels

import (
	jsoniter "github.com/json-iterator/go"

	"seeker/pkg/agent"
	"seeker/pkg/config"
)

// Channel is an optional message surface (e.g. Telegram) feeding user
// messages into the agent loop.
type Channel interface {
	// ID returns the unique platform identifier.
	ID() string
	// Start begins receiving messages in the background.
	Start() error
	// Stop shuts the channel down.
	Stop() error
}

// ChannelFactory defines the abstract interface for platform-specific
// channel creators. This allows the system to support new platforms
// (e.g., Discord, Line) without modifying the core loop.
type ChannelFactory interface {
	// Create instantiates a concrete Channel implementation using the
	// provided configuration and shared system resources.
	Create(rawConfig jsoniter.RawMessage, controller *agent.Controller, system *config.SystemConfig) (Channel, error)
}

// channelRegistry is an internal global map stores the mapping between
// platform names (e.g., "telegram") and their factory implementations.
var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
