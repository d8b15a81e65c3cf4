// Package config layers session configuration from, in increasing
// precedence: built-in defaults, an optional TOML file, environment
// variables named PROG_<FIELD>, and finally CLI flags, which the
// command layer copies onto the Config returned by Load only when the
// operator actually passed them (so a passed flag always wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode selects the differential-vs-assert evaluation strategy, or a
// one-shot mutator smoke test.
type Mode string

const (
	ModeFuzz       Mode = "fuzz"
	ModeFuzzAssert Mode = "fuzz-asserts"
	ModeTestMutator Mode = "test-mutator"
)

// Config is the fully-resolved session configuration, one field per
// spec.md §6 CLI flag plus the compile-service host/port that is only
// ever set via env or file (spec.md §6: "Environment variables
// override nothing that CLI already set").
type Config struct {
	Seeds    string `toml:"seeds"`
	Mode     string `toml:"mode"`
	Blacklist string `toml:"blacklist"`
	SeedPool string `toml:"seedpool"`

	MutatorPolicy string `toml:"mutator_policy"`
	CorpusPolicy  string `toml:"corpus_policy"`
	Scoring       string `toml:"scoring"`

	Executors         int `toml:"executors"`
	MutatorThreads    int `toml:"mutator_threads"`
	MutatorBatchSize  int `toml:"mutator_batch_size"`
	MutatorTimeoutMs  int `toml:"mutator_timeout_ms"`
	MutatorSlowLimit  int `toml:"mutator_slow_limit"`

	RNGSeed int64  `toml:"rng"`
	JDK     string `toml:"jdk"`
	LogLevel string `toml:"log_level"`

	SignalIntervalSec  int  `toml:"signal_interval"`
	MutatorIntervalSec int  `toml:"mutator_interval"`
	Debug              bool `toml:"debug"`
	PrintAST           bool `toml:"print_ast"`

	CompileServiceHost string `toml:"compile_service_host"`
	CompileServicePort int    `toml:"compile_service_port"`

	// NumFeatures is F, the fixed instrumentation feature-set width.
	// Not a CLI flag (the wire format that defines F is an external
	// collaborator detail per spec.md §6); overridable via file/env
	// only for an operator wiring a real instrumented runtime.
	NumFeatures int `toml:"num_features"`
}

// Default returns the built-in defaults, matching spec.md §6's stated
// defaults where given.
func Default() Config {
	return Config{
		Mode:               string(ModeFuzz),
		MutatorPolicy:      "uniform",
		CorpusPolicy:       "champion",
		Scoring:            "pf-idf",
		Executors:          4,
		MutatorThreads:     2,
		MutatorBatchSize:   4,
		MutatorTimeoutMs:   2000,
		MutatorSlowLimit:   5,
		JDK:                "java",
		LogLevel:           "info",
		SignalIntervalSec:  5,
		MutatorIntervalSec: 30,
		CompileServiceHost: "127.0.0.1",
		CompileServicePort: 8701,
		NumFeatures:        64,
	}
}

// envPrefix is the variable name prefix spec.md §6 requires.
const envPrefix = "PROG_"

// Load builds a Config starting from Default, optionally overlaying a
// TOML file at path (skipped if path is empty), then overlaying any
// PROG_<FIELD> environment variables present. CLI flags are applied
// afterward by the caller (applyChangedFlags in cmd/jitfuzz) and have
// final precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overlays PROG_<FIELD> environment variables onto cfg, field
// names upper-cased and matched against the toml tag.
func applyEnv(cfg *Config) error {
	fields := map[string]interface{ set(string) error }{
		"SEEDS":                 setString(&cfg.Seeds),
		"MODE":                  setString(&cfg.Mode),
		"BLACKLIST":             setString(&cfg.Blacklist),
		"SEEDPOOL":              setString(&cfg.SeedPool),
		"MUTATOR_POLICY":        setString(&cfg.MutatorPolicy),
		"CORPUS_POLICY":         setString(&cfg.CorpusPolicy),
		"SCORING":               setString(&cfg.Scoring),
		"EXECUTORS":             setInt(&cfg.Executors),
		"MUTATOR_THREADS":       setInt(&cfg.MutatorThreads),
		"MUTATOR_BATCH_SIZE":    setInt(&cfg.MutatorBatchSize),
		"MUTATOR_TIMEOUT_MS":    setInt(&cfg.MutatorTimeoutMs),
		"MUTATOR_SLOW_LIMIT":    setInt(&cfg.MutatorSlowLimit),
		"RNG":                   setInt64(&cfg.RNGSeed),
		"JDK":                   setString(&cfg.JDK),
		"LOG_LEVEL":             setString(&cfg.LogLevel),
		"SIGNAL_INTERVAL":       setInt(&cfg.SignalIntervalSec),
		"MUTATOR_INTERVAL":      setInt(&cfg.MutatorIntervalSec),
		"DEBUG":                 setBool(&cfg.Debug),
		"PRINT_AST":             setBool(&cfg.PrintAST),
		"COMPILE_SERVICE_HOST":  setString(&cfg.CompileServiceHost),
		"COMPILE_SERVICE_PORT":  setInt(&cfg.CompileServicePort),
		"NUM_FEATURES":          setInt(&cfg.NumFeatures),
	}

	for name, setter := range fields {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok || v == "" {
			continue
		}

		if err := setter.set(v); err != nil {
			return fmt.Errorf("config: env %s%s: %w", envPrefix, name, err)
		}
	}

	return nil
}

type setterFunc func(string) error

func (f setterFunc) set(v string) error { return f(v) }

func setString(dst *string) setterFunc {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) setterFunc {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

func setInt64(dst *int64) setterFunc {
	return func(v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

func setBool(dst *bool) setterFunc {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}

		*dst = b

		return nil
	}
}
