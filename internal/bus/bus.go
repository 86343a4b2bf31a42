package bus

import (
	"fmt"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

// New creates the event bus carrying batch jobs.
// An empty type selects the in-process ChannelBus (Community tier); "nats"
// selects NATSBus (Pro tier), shared by every worker process.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
