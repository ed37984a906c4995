package coursepilot

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/sink"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

// Sink is the output interface for pilot events.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink. A nil writer means os.Stdout.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink; fn runs on the relay goroutine.
func NewCallbackSink(fn func(ctx context.Context, ev state.Event) error) Sink {
	return sink.NewCallback(fn)
}

// SinksFromConfig builds the sinks declared in cfg.Sinks.
func SinksFromConfig(cfg *Config, logger *slog.Logger) []Sink {
	var sinks []Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		default:
			logger.Warn("coursepilot: unknown sink type", "type", sc.Type)
		}
	}
	return sinks
}
