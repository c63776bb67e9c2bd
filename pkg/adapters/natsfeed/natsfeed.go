// Package natsfeed publishes MarketObservation values to NATS, one
// subject per symbol, using nats.Connect/Publish. Like wsfeed, it
// only ever reads from the observation channel.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lxstream/itchbook/pkg/log"
	"github.com/lxstream/itchbook/pkg/marketdata"
)

const subjectPrefix = "itch.obs."

// Publisher connects to a NATS server and republishes every observation
// under "itch.obs.<symbol>".
type Publisher struct {
	nc     *nats.Conn
	logger log.Logger
}

// Connect dials url (nats.DefaultURL works for a local broker) with the
// same reconnect policy a long-lived publisher needs.
func Connect(url string, logger log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Root()
	}
	nc, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, fmt.Errorf("natsfeed: connect: %w", err)
	}
	return &Publisher{nc: nc, logger: logger}, nil
}

// Close closes the underlying connection; it does not drain it first.
func (p *Publisher) Close() {
	p.nc.Close()
}

// Run publishes obs until it closes or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, obs <-chan marketdata.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-obs:
			if !ok {
				return
			}
			p.publish(o)
		}
	}
}

func (p *Publisher) publish(o marketdata.Observation) {
	payload, err := json.Marshal(o)
	if err != nil {
		p.logger.Warn("failed to marshal observation", "error", err)
		return
	}
	subject := subjectPrefix + o.Symbol
	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Warn("nats publish failed", "subject", subject, "error", err)
	}
}
