// Package config is the single entry point that wires a ByteSource,
// Decoder, Book, Emitter and Pipeline together from a flat set of
// options. The core packages never import this one back — only the
// cmd layer depends on it, so the decode/book/observe chain stays
// embeddable in a host that wants its own wiring.
package config

import (
	"context"
	"fmt"
	"io"

	"github.com/lxstream/itchbook/pkg/book"
	"github.com/lxstream/itchbook/pkg/itch"
	"github.com/lxstream/itchbook/pkg/itchtypes"
	"github.com/lxstream/itchbook/pkg/log"
	"github.com/lxstream/itchbook/pkg/marketdata"
	"github.com/lxstream/itchbook/pkg/metrics"
	"github.com/lxstream/itchbook/pkg/pipeline"
)

// Config mirrors the options named in §6.3 plus the ambient fields the
// reference runner needs. The core pipeline only ever sees the fields
// it was already built around (MessageCap, SymbolFilter, the two queue
// capacities, EmitOnUnchanged); MetricsAddr and LogLevel exist purely
// for cmd/itch-feed.
type Config struct {
	// MessageCap stops decoding after N messages; 0 is unbounded.
	MessageCap uint64
	// SymbolFilter restricts published observations to these symbols;
	// empty means publish for every symbol.
	SymbolFilter []string
	// Q1Capacity and Q2Capacity size the raw-message and observation
	// queues. Zero picks the pipeline package's defaults (4096/16384).
	Q1Capacity int
	Q2Capacity int
	// EmitOnUnchanged, when false, suppresses observations whose
	// best_bid/best_ask pair did not change from the last published
	// value for that symbol.
	EmitOnUnchanged bool

	// MetricsAddr, when non-empty, is where cmd/itch-feed serves
	// /metrics. The core package never listens on anything itself.
	MetricsAddr string
	// LogLevel is passed to log.New; empty defaults to "info".
	LogLevel string
	// MetricsNamespace prefixes every exported counter/gauge name.
	MetricsNamespace string
}

// Runtime is the fully wired set of components Build produces.
type Runtime struct {
	Decoder  *itch.Decoder
	Book     *book.Book
	Emitter  *marketdata.Emitter
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
	Logger   log.Logger
}

// Build opens no files and dials nothing by itself — it wraps the
// already-open r (the input source, per §6.1 "file, pipe, or socket")
// in a ByteSource and wires every downstream component around it.
func Build(r io.Reader, cfg Config) (*Runtime, error) {
	filter, err := parseSymbols(cfg.SymbolFilter)
	if err != nil {
		return nil, err
	}

	logger := log.New(cfg.LogLevel)
	namespace := cfg.MetricsNamespace
	if namespace == "" {
		namespace = "itchbook"
	}
	m := metrics.New(namespace)

	src := itch.NewByteSource(r)
	decoder := itch.NewDecoder(src)
	b := book.New(logger, m.InvariantCounter())
	emitter := marketdata.NewEmitter(filter, cfg.EmitOnUnchanged)

	p := pipeline.New(decoder, b, emitter, pipeline.Config{
		MessageCap: cfg.MessageCap,
		Q1Capacity: cfg.Q1Capacity,
		Q2Capacity: cfg.Q2Capacity,
	}, logger, m)

	return &Runtime{Decoder: decoder, Book: b, Emitter: emitter, Pipeline: p, Metrics: m, Logger: logger}, nil
}

// Run starts the wired pipeline and ranges over its observation channel
// until ctx is cancelled or the input is exhausted, invoking onObserve
// for each published value.
func (rt *Runtime) Run(ctx context.Context, onObserve func(marketdata.Observation)) {
	for obs := range rt.Pipeline.Run(ctx) {
		onObserve(obs)
	}
}

func parseSymbols(raw []string) ([]itchtypes.Symbol, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]itchtypes.Symbol, 0, len(raw))
	for _, s := range raw {
		if len(s) == 0 || len(s) > 8 {
			return nil, fmt.Errorf("config: symbol filter entry %q must be 1-8 characters", s)
		}
		out = append(out, itchtypes.NewSymbol(s))
	}
	return out, nil
}
