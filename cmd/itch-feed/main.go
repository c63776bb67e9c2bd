// Command itch-feed is a thin reference runner that proves C1-C6 wire
// together: it opens an ITCH 5.0 input source, runs it through the
// decode -> book -> observe pipeline, and prints a summary line. It is
// deliberately minimal — no flag polish, no output formatting beyond
// a final count, no gzip or CSV handling.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lxstream/itchbook/pkg/adapters/natsfeed"
	"github.com/lxstream/itchbook/pkg/adapters/wsfeed"
	"github.com/lxstream/itchbook/pkg/config"
	"github.com/lxstream/itchbook/pkg/marketdata"
)

func main() {
	var (
		inputPath   = flag.String("input", "", "path to an ITCH 5.0 binary file; '-' or empty reads stdin")
		messageCap  = flag.Uint64("message-cap", 0, "stop after N decoded messages (0 = unbounded)")
		symbolList  = flag.String("symbols", "", "comma-separated symbol filter; empty publishes every symbol")
		emitAlways  = flag.Bool("emit-on-unchanged", false, "publish an observation even when best_bid/best_ask did not change")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics at this address, e.g. :9090")
		wsAddr      = flag.String("ws-addr", "", "also broadcast observations over WebSocket at this address, e.g. :8081")
		natsURL     = flag.String("nats-url", "", "also publish observations to this NATS server, e.g. nats://localhost:4222")
		logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	in := os.Stdin
	if *inputPath != "" && *inputPath != "-" {
		f, err := os.Open(*inputPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "itch-feed:", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	rt, err := config.Build(in, config.Config{
		MessageCap:      *messageCap,
		SymbolFilter:    splitSymbols(*symbolList),
		EmitOnUnchanged: *emitAlways,
		MetricsAddr:     *metricsAddr,
		LogLevel:        *logLevel,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "itch-feed:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.Metrics.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				rt.Logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	obs := rt.Pipeline.Run(ctx)

	var sinks []chan marketdata.Observation
	if *wsAddr != "" {
		ws := wsfeed.New(rt.Logger)
		feed := make(chan marketdata.Observation, 256)
		sinks = append(sinks, feed)
		go func() {
			if err := ws.Run(ctx, *wsAddr, feed); err != nil {
				rt.Logger.Warn("websocket feed stopped", "error", err)
			}
		}()
	}
	if *natsURL != "" {
		pub, err := natsfeed.Connect(*natsURL, rt.Logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "itch-feed:", err)
			os.Exit(1)
		}
		defer pub.Close()
		feed := make(chan marketdata.Observation, 256)
		sinks = append(sinks, feed)
		go pub.Run(ctx, feed)
	}

	var count uint64
	for o := range obs {
		count++
		for _, sink := range sinks {
			select {
			case sink <- o:
			default:
				rt.Logger.Warn("dropping observation for slow adapter sink")
			}
		}
	}
	for _, sink := range sinks {
		close(sink)
	}
	fmt.Printf("itch-feed: published %d observations\n", count)
}

func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
