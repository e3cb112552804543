// Package statsd wraps the few statsd calls the arena makes. It hides the datadog dependency so migrating to another
// statsd client only touches this file.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitOpStat records the duration of one arena operation.
func EmitOpStat(start time.Time, op, outcome string) {
	err := Client().Timing("op", time.Since(start), []string{"op:" + op, "outcome:" + outcome}, 1)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("failed to emit op stat")
	}
}

// Count increments the named counter.
func Count(name string, tags ...string) {
	if err := Client().Incr(name, tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit counter")
	}
}

// Gauge records the current value of the named metric.
func Gauge(name string, value float64, tags ...string) {
	if err := Client().Gauge(name, value, tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit gauge")
	}
}

// Init replaces the no-op client with one sending to address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace("arena."),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	client = newClient
	return nil
}

// Close flushes and closes the client.
func Close() error {
	return eris.Wrap(client.Close(), "")
}
