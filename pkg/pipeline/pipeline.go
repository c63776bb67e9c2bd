// Package pipeline wires the decoder, the order book and the
// observation emitter into a bounded producer/consumer fabric: two
// buffered channels stand in for the raw-message and observation
// queues, and closing a channel is Go's native expression of "no more
// messages" / "no more observations".
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/lxstream/itchbook/pkg/book"
	"github.com/lxstream/itchbook/pkg/itch"
	"github.com/lxstream/itchbook/pkg/log"
	"github.com/lxstream/itchbook/pkg/marketdata"
	"github.com/lxstream/itchbook/pkg/metrics"
)

// Config carries the pipeline-level options from §6.3 that are not
// already owned by the book or the emitter.
type Config struct {
	// MessageCap stops decoding after N messages; 0 means unbounded.
	MessageCap uint64
	// Q1Capacity and Q2Capacity size the raw-message and observation
	// queues. Suggested defaults per §4.5 are 4096 and 16384.
	Q1Capacity int
	Q2Capacity int
}

// Pipeline runs the decode -> book -> observe chain across two
// goroutines connected by buffered channels.
type Pipeline struct {
	decoder *itch.Decoder
	book    *book.Book
	emitter *marketdata.Emitter
	cfg     Config
	logger  log.Logger
	metrics *metrics.Metrics
}

// New builds a Pipeline. logger and m may be nil.
func New(decoder *itch.Decoder, b *book.Book, emitter *marketdata.Emitter, cfg Config, logger log.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.Q1Capacity <= 0 {
		cfg.Q1Capacity = 4096
	}
	if cfg.Q2Capacity <= 0 {
		cfg.Q2Capacity = 16384
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Pipeline{decoder: decoder, book: b, emitter: emitter, cfg: cfg, logger: logger, metrics: m}
}

// Run starts the decoder and book-applier goroutines and returns the
// observation channel. The channel closes once the underlying byte
// source is exhausted (or MessageCap is reached) and every in-flight
// message has drained through the book — the cooperative shutdown
// sequence from §5. Cancelling ctx closes it promptly instead, without
// draining messages still queued in q1. Run does not block; the caller is the third
// logical worker, ranging over the returned channel.
func (p *Pipeline) Run(ctx context.Context) <-chan marketdata.Observation {
	q1 := make(chan itch.Message, p.cfg.Q1Capacity)
	q2 := make(chan marketdata.Observation, p.cfg.Q2Capacity)

	go p.decode(ctx, q1)
	go p.apply(ctx, q1, q2)

	return q2
}

// decode is the sole reader of the byte source. It is the only
// goroutine permitted to call p.decoder.Next — the decoder owns a
// mutable read cursor and is not safe for concurrent use.
func (p *Pipeline) decode(ctx context.Context, q1 chan<- itch.Message) {
	defer close(q1)

	var decoded uint64
	for {
		if ctx.Err() != nil {
			return
		}
		if p.cfg.MessageCap > 0 && decoded >= p.cfg.MessageCap {
			return
		}

		m, err := p.decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if kind, ok := recoverableKind(err); ok {
				p.logger.Warn("dropping record after decode error", "error", err)
				p.metrics.IncRecordErrors(kind)
				continue
			}
			p.logger.Error("decode stream ended by unrecoverable error", "error", err)
			return
		}

		decoded++
		p.metrics.IncMessagesDecoded(string(byte(m.Tag)))
		select {
		case q1 <- m:
			p.metrics.SetQ1Depth(len(q1))
		case <-ctx.Done():
			return
		}
	}
}

// recoverableKind reports whether err is scoped to one record (§7) —
// UnknownTag and InvalidField never halt the stream — and, if so, the
// metrics label naming which kind of error it was.
func recoverableKind(err error) (string, bool) {
	var unknown *itch.UnknownTag
	if errors.As(err, &unknown) {
		return "unknown_tag", true
	}
	var invalid *itch.InvalidField
	if errors.As(err, &invalid) {
		return "invalid_field", true
	}
	return "", false
}

// apply is the sole writer to the book. It drains q1 strictly in
// arrival order — the book's correctness depends on that — derives an
// observation for every message that touches a symbol, and forwards
// publishable ones to q2.
func (p *Pipeline) apply(ctx context.Context, q1 <-chan itch.Message, q2 chan<- marketdata.Observation) {
	defer close(q2)

	for {
		select {
		case m, ok := <-q1:
			if !ok {
				return
			}
			p.metrics.SetQ1Depth(len(q1))

			start := time.Now()
			sym, touched := p.book.Apply(m)
			p.metrics.ObserveApplyLatency(time.Since(start))
			if !touched {
				continue
			}
			obs, publish := p.emitter.Observe(p.book, sym, m.Header.Timestamp)
			if !publish {
				continue
			}
			p.metrics.IncObservationsPublished(obs.Symbol)
			select {
			case q2 <- obs:
				p.metrics.SetQ2Depth(len(q2))
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
