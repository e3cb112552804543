package arena

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// config holds environment-based configuration for the arena.
type config struct {
	// ReadyPolicy is "both" (each participant must mark ready) or "either" (the first ready mark starts the battle).
	ReadyPolicy string `env:"ARENA_READY_POLICY" envDefault:"both"`

	// RetainHistory keeps a match_result row for every completed match.
	RetainHistory bool `env:"ARENA_RETAIN_HISTORY" envDefault:"true"`
}

func loadConfig() (config, error) {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return config{}, eris.Wrap(err, "failed to parse arena config")
	}
	if ParseReadyPolicy(cfg.ReadyPolicy) == ReadyPolicyUndefined {
		return config{}, eris.Errorf("invalid ready policy: %s (must be 'both' or 'either')", cfg.ReadyPolicy)
	}
	return cfg, nil
}

func (cfg config) applyToOptions(opt *Options) {
	opt.ReadyPolicy = ParseReadyPolicy(cfg.ReadyPolicy)
	if cfg.RetainHistory {
		opt.History = HistoryRetain
	} else {
		opt.History = HistoryDiscard
	}
}

// Options configures an Arena. Zero fields keep the value loaded from the environment.
type Options struct {
	ReadyPolicy ReadyPolicy
	History     HistoryMode

	Logger *zerolog.Logger
	Tracer trace.Tracer
}

func newDefaultOptions() Options {
	return Options{
		ReadyPolicy: ReadyPolicyBoth,
		History:     HistoryRetain,
		Logger:      nil,
		Tracer:      nil,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.ReadyPolicy != ReadyPolicyUndefined {
		opt.ReadyPolicy = newOpt.ReadyPolicy
	}
	if newOpt.History != HistoryUndefined {
		opt.History = newOpt.History
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
	if newOpt.Tracer != nil {
		opt.Tracer = newOpt.Tracer
	}
}

func (opt *Options) validate() error {
	if opt.ReadyPolicy == ReadyPolicyUndefined {
		return eris.New("ready policy must be specified")
	}
	if opt.History == HistoryUndefined {
		return eris.New("history mode must be specified")
	}
	return nil
}

// ReadyPolicy decides when a match leaves the preparation phase.
type ReadyPolicy uint8

const (
	ReadyPolicyUndefined ReadyPolicy = iota
	ReadyPolicyBoth                  // Both participants must be marked ready
	ReadyPolicyEither                // Any participant marking ready starts the battle
)

func (p ReadyPolicy) String() string {
	switch p {
	case ReadyPolicyUndefined:
		return "undefined"
	case ReadyPolicyBoth:
		return "both"
	case ReadyPolicyEither:
		return "either"
	default:
		return "undefined"
	}
}

// ParseReadyPolicy converts a string to ReadyPolicy.
func ParseReadyPolicy(s string) ReadyPolicy {
	switch strings.ToLower(s) {
	case "both":
		return ReadyPolicyBoth
	case "either":
		return ReadyPolicyEither
	default:
		return ReadyPolicyUndefined
	}
}

// HistoryMode decides whether completed matches leave a match_result row behind.
type HistoryMode uint8

const (
	HistoryUndefined HistoryMode = iota
	HistoryRetain
	HistoryDiscard
)
