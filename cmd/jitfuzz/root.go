package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jitfuzz/jitfuzz/internal/config"
	"github.com/jitfuzz/jitfuzz/internal/logging"
	"github.com/jitfuzz/jitfuzz/internal/session"
)

var configPath string

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "jitfuzz",
		Short: "Coverage-guided differential fuzzer for JIT-compiled runtimes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuzz(cmd, cfg)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "optional TOML config file (defaults and env still apply)")

	root.Flags().StringVar(&cfg.Seeds, "seeds", cfg.Seeds, "directory of seed programs (required)")
	root.Flags().StringVar(&cfg.Mode, "mode", cfg.Mode, "fuzz|fuzz-asserts|test-mutator")
	root.Flags().StringVar(&cfg.MutatorPolicy, "mutator-policy", cfg.MutatorPolicy, "uniform|bandit|mop")
	root.Flags().StringVar(&cfg.CorpusPolicy, "corpus-policy", cfg.CorpusPolicy, "champion|random")
	root.Flags().StringVar(&cfg.Scoring, "scoring", cfg.Scoring, "pf-idf|absolute-count|pair-coverage|interaction-diversity|novel-feature-bonus|uniform")
	root.Flags().IntVar(&cfg.Executors, "executors", cfg.Executors, "number of parallel executor goroutines")
	root.Flags().IntVar(&cfg.MutatorThreads, "mutator-threads", cfg.MutatorThreads, "number of mutator worker goroutines")
	root.Flags().IntVar(&cfg.MutatorBatchSize, "mutator-batch-size", cfg.MutatorBatchSize, "mutations attempted per scheduler dispatch")
	root.Flags().IntVar(&cfg.MutatorTimeoutMs, "mutator-timeout-ms", cfg.MutatorTimeoutMs, "per-mutation wall clock budget, in milliseconds")
	root.Flags().IntVar(&cfg.MutatorSlowLimit, "mutator-slow-limit", cfg.MutatorSlowLimit, "consecutive slow mutations before a test case is evicted")
	root.Flags().Int64Var(&cfg.RNGSeed, "rng", cfg.RNGSeed, "random seed (0 picks one from the OS clock)")
	root.Flags().StringVar(&cfg.JDK, "jdk", cfg.JDK, "path to the java binary under test")
	root.Flags().StringVar(&cfg.Blacklist, "blacklist", cfg.Blacklist, "file of seed names to exclude, reloaded on change")
	root.Flags().StringVar(&cfg.SeedPool, "seedpool", cfg.SeedPool, "directory watched for newly dropped seeds")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace|debug|info|warn|error")
	root.Flags().IntVar(&cfg.SignalIntervalSec, "signal-interval", cfg.SignalIntervalSec, "seconds between signals.csv snapshots")
	root.Flags().IntVar(&cfg.MutatorIntervalSec, "mutator-interval", cfg.MutatorIntervalSec, "seconds between mutator_optimization_stats.csv snapshots")
	root.Flags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "emit per-mutator debug snapshots")
	root.Flags().BoolVar(&cfg.PrintAST, "print-ast", cfg.PrintAST, "print each mutated program's AST before execution")

	return root
}

// runFuzz resolves the final Config (defaults, then --config file, then
// env, then whichever flags the operator actually passed) and runs the
// session to completion or until an interrupt.
func runFuzz(cmd *cobra.Command, flagCfg config.Config) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	applyChangedFlags(cmd, &cfg, flagCfg)

	if cfg.Seeds == "" {
		return fmt.Errorf("jitfuzz: --seeds is required")
	}

	log := logging.New(cfg.LogLevel, os.Stderr)

	ctl, err := session.New(cfg, log)
	if err != nil {
		return fmt.Errorf("jitfuzz: build session: %w", err)
	}

	if config.Mode(cfg.Mode) == config.ModeTestMutator {
		return ctl.RunTestMutator()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ctl.Run(ctx)
}

// applyChangedFlags copies every flag the operator explicitly passed on
// the command line from flagCfg onto cfg, leaving file/env-derived values
// in place for everything else. CLI flags have the highest precedence.
func applyChangedFlags(cmd *cobra.Command, cfg *config.Config, flagCfg config.Config) {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	if changed("seeds") {
		cfg.Seeds = flagCfg.Seeds
	}

	if changed("mode") {
		cfg.Mode = flagCfg.Mode
	}

	if changed("mutator-policy") {
		cfg.MutatorPolicy = flagCfg.MutatorPolicy
	}

	if changed("corpus-policy") {
		cfg.CorpusPolicy = flagCfg.CorpusPolicy
	}

	if changed("scoring") {
		cfg.Scoring = flagCfg.Scoring
	}

	if changed("executors") {
		cfg.Executors = flagCfg.Executors
	}

	if changed("mutator-threads") {
		cfg.MutatorThreads = flagCfg.MutatorThreads
	}

	if changed("mutator-batch-size") {
		cfg.MutatorBatchSize = flagCfg.MutatorBatchSize
	}

	if changed("mutator-timeout-ms") {
		cfg.MutatorTimeoutMs = flagCfg.MutatorTimeoutMs
	}

	if changed("mutator-slow-limit") {
		cfg.MutatorSlowLimit = flagCfg.MutatorSlowLimit
	}

	if changed("rng") {
		cfg.RNGSeed = flagCfg.RNGSeed
	}

	if changed("jdk") {
		cfg.JDK = flagCfg.JDK
	}

	if changed("blacklist") {
		cfg.Blacklist = flagCfg.Blacklist
	}

	if changed("seedpool") {
		cfg.SeedPool = flagCfg.SeedPool
	}

	if changed("log-level") {
		cfg.LogLevel = flagCfg.LogLevel
	}

	if changed("signal-interval") {
		cfg.SignalIntervalSec = flagCfg.SignalIntervalSec
	}

	if changed("mutator-interval") {
		cfg.MutatorIntervalSec = flagCfg.MutatorIntervalSec
	}

	if changed("debug") {
		cfg.Debug = flagCfg.Debug
	}

	if changed("print-ast") {
		cfg.PrintAST = flagCfg.PrintAST
	}
}
