// Command trout is a UCI chess engine.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/hailam/trout/internal/config"
	"github.com/hailam/trout/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	configPath = flag.String("config", "", "config file (yaml, toml or json)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}
	logFile, err := cfg.SetupLogging()
	if err != nil {
		log.Fatal().Err(err).Msg("could not set up logging")
	}
	defer logFile.Close()
	defer config.LogPanic("main")

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	protocol, err := uci.New(os.Stdout, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start engine")
	}
	defer protocol.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().
		Int("hash_mb", cfg.HashMB).
		Int("multipv", cfg.MultiPV).
		Str("analysis_dir", cfg.AnalysisDir).
		Msg("engine ready")
	if err := protocol.Run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("reading commands")
	}
}
